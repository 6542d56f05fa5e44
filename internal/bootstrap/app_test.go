package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"docintell/internal/model"
	"docintell/internal/pkg/logging"
)

type stubLister struct {
	ids []string
	err error
}

func (s stubLister) ListIDsByStatus(_ context.Context, status model.DocumentStatus) ([]string, error) {
	if status != model.StatusCompleted {
		return nil, nil
	}
	return s.ids, s.err
}

func TestWarnUnindexedDocuments(t *testing.T) {
	tests := []struct {
		name    string
		lister  stubLister
		want    int
		wantLog string
	}{
		{name: "fresh database", lister: stubLister{}, want: 0},
		{name: "completed documents", lister: stubLister{ids: []string{"a", "b"}}, want: 2, wantLog: "completed_documents=2"},
		{name: "lookup fails", lister: stubLister{err: errors.New("db down")}, want: 0, wantLog: "db down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := logging.NewWriter(&buf, "info", "text")

			got := warnUnindexedDocuments(context.Background(), logger, tt.lister)
			assert.Equal(t, tt.want, got)
			if tt.wantLog == "" {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), "level=WARN")
			assert.Contains(t, buf.String(), tt.wantLog)
		})
	}
}
