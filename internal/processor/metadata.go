// internal/processor/metadata.go
package processor

// Visualization types
const (
	VisualizationBar     = "bar"
	VisualizationLine    = "line"
	VisualizationPie     = "pie"
	VisualizationMetrics = "metrics"
	VisualizationTable   = "table"
)

// ChartHint describes one chart a client can draw from the rows
type ChartHint struct {
	Type  string   `json:"type"`
	X     string   `json:"x,omitempty"`
	Y     []string `json:"y,omitempty"`
	Title string   `json:"title"`
}

// ResultMetadata provides visualization hints and recommendations
type ResultMetadata struct {
	VisualizationType string      `json:"visualization_type"`
	Charts            []ChartHint `json:"charts,omitempty"`
	Recommendation    string      `json:"recommendation"`
	NextSteps         []string    `json:"next_steps,omitempty"`
}

// MetadataGenerator generates visualization hints and recommendations for query results
type MetadataGenerator struct{}

// NewMetadataGenerator creates a new metadata generator
func NewMetadataGenerator() *MetadataGenerator {
	return &MetadataGenerator{}
}

// GenerateMetadata picks charts from the result columns and suggests follow-up questions
func (mg *MetadataGenerator) GenerateMetadata(intent Intent, results *QueryResults) *ResultMetadata {
	metadata := &ResultMetadata{
		Charts:    mg.charts(results.Columns),
		NextSteps: []string{},
	}

	metadata.VisualizationType = VisualizationTable
	if len(metadata.Charts) > 0 {
		metadata.VisualizationType = metadata.Charts[0].Type
	}

	switch intent {
	case IntentDepartmentAttrition:
		metadata.Recommendation = "Compare this rate with other departments"
		metadata.NextSteps = append(metadata.NextSteps,
			"Ask for the hiring recommendation for this department",
			"Break terminations down by age group and service level")
	case IntentHiringRecommendation:
		metadata.Recommendation = "The target adds a 10% buffer to average monthly terminations"
		metadata.NextSteps = append(metadata.NextSteps, "Check the department attrition rate")
	case IntentAgeServiceWithDepartment, IntentAgeServiceDefault:
		metadata.Recommendation = "Shows how terminations split across age groups for one service level"
		metadata.NextSteps = append(metadata.NextSteps, "Try another service level or department")
	case IntentAnnualAttrition:
		metadata.Recommendation = "Year-over-year attrition is best read as a bar chart"
		metadata.NextSteps = append(metadata.NextSteps, "Drill into a single department")
	case IntentMonthlyTrend:
		metadata.Recommendation = "Terminations and active employees by hire month"
		metadata.NextSteps = append(metadata.NextSteps, "Ask for attrition in a specific year")
	default:
		metadata.Recommendation = "Raw rows from the dataset"
		metadata.NextSteps = append(metadata.NextSteps, "Ask about attrition, hiring or age groups")
	}

	if results.Truncated {
		metadata.NextSteps = append(metadata.NextSteps, "Narrow the question: only the first rows are shown")
	}

	if results.TotalRows == 0 {
		metadata.VisualizationType = VisualizationTable
		metadata.Charts = nil
		metadata.Recommendation = "No data found for this question"
		metadata.NextSteps = []string{
			"Check the department name",
			"Verify the dataset covers the requested period",
		}
	}

	return metadata
}

// charts maps known column sets to chart hints
func (mg *MetadataGenerator) charts(columns []string) []ChartHint {
	switch {
	case hasColumns(columns, "year", "attrition_rate"):
		return []ChartHint{{Type: VisualizationBar, X: "year", Y: []string{"attrition_rate"}, Title: "Attrition Rate"}}

	case hasColumns(columns, "ym", "terminations", "active"):
		return []ChartHint{{Type: VisualizationLine, X: "ym", Y: []string{"terminations", "active"}, Title: "Terminations and Active Employees Over Time"}}

	case hasColumns(columns, "ym", "monthly_terminations"):
		return []ChartHint{{Type: VisualizationBar, X: "ym", Y: []string{"monthly_terminations"}, Title: "Monthly Terminations"}}

	case hasColumns(columns, "age_group", "service_percentage"):
		return []ChartHint{
			{Type: VisualizationPie, X: "age_group", Y: []string{"total_terminations"}, Title: "Terminations by Age Group"},
			{Type: VisualizationBar, X: "age_group", Y: []string{"service_percentage"}, Title: "Service Level Percentage by Age Group"},
		}

	case hasColumns(columns, "avg_monthly_attrition"):
		return []ChartHint{{Type: VisualizationMetrics, Y: []string{"avg_monthly_attrition", "recommended_hiring_target"}, Title: "Hiring Recommendations"}}
	}

	return nil
}
