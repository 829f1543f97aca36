package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/poseloop/internal/dynamo"
	"github.com/san-kum/poseloop/internal/sim"
)

type ExportData struct {
	RunInfo
	Start         dynamo.Pose        `json:"start"`
	Outcome       string             `json:"outcome"`
	Steps         int                `json:"steps"`
	FinalDistance float64            `json:"final_distance"`
	Times         []float64          `json:"times"`
	Poses         []dynamo.Pose      `json:"poses"`
	Commands      []dynamo.Command   `json:"commands"`
	Phases        []string           `json:"phases"`
	Metrics       map[string]float64 `json:"metrics"`
}

func ExportJSON(w io.Writer, info RunInfo, result *sim.Result) error {
	data := ExportData{
		RunInfo:       info,
		Start:         result.Start,
		Outcome:       result.Outcome.String(),
		Steps:         result.Steps,
		FinalDistance: result.FinalDistance,
		Times:         result.Times,
		Poses:         result.Poses,
		Commands:      result.Commands,
		Phases:        make([]string, len(result.Phases)),
		Metrics:       result.Metrics,
	}
	for i, p := range result.Phases {
		data.Phases[i] = p.String()
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
