package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexHTML(t *testing.T) {
	page := string(IndexHTML())

	assert.Contains(t, page, "<title>HR Analytics Bot</title>")
	assert.Contains(t, page, "/nlquery")
	assert.Contains(t, page, "/datasets")
}
