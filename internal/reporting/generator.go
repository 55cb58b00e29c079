package reporting

import (
	"context"
	"fmt"

	"evm-liquidation-lab/internal/logger"
	"evm-liquidation-lab/internal/observability"
)

// Generator renders a report in every format and stores it.
type Generator struct {
	sink Sink
	log  *logger.Entry
}

// NewGenerator creates a generator writing to sink.
func NewGenerator(sink Sink, log *logger.Entry) *Generator {
	if log == nil {
		log = logger.Component("reporting")
	}
	return &Generator{sink: sink, log: log}
}

// Write stores base.csv, base.json and base.md and returns their names.
func (g *Generator) Write(ctx context.Context, base string, r *Report) ([]string, error) {
	csvData, err := RenderCSV(r.Attempts)
	if err != nil {
		return nil, fmt.Errorf("render csv: %w", err)
	}
	jsonData, err := RenderJSON(r)
	if err != nil {
		return nil, fmt.Errorf("render json: %w", err)
	}

	artifacts := []struct {
		name string
		data []byte
	}{
		{base + ".csv", []byte(csvData)},
		{base + ".json", jsonData},
		{base + ".md", []byte(RenderMarkdown(r))},
	}

	names := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		if err := g.sink.Put(ctx, a.name, a.data); err != nil {
			return names, err
		}
		names = append(names, a.name)
	}

	observability.RecordReport()
	g.log.WithFields(logger.Fields{
		"run_id": r.Run.RunID,
		"files":  names,
	}).Info("report written")
	return names, nil
}
