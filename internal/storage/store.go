package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/poseloop/internal/dynamo"
	"github.com/san-kum/poseloop/internal/sim"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv"
)

var trajectoryHeader = []string{"time", "x", "y", "theta", "v", "w", "phase"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// RunInfo describes how a run was configured.
type RunInfo struct {
	Label      string      `json:"label,omitempty"`
	Strategy   string      `json:"strategy"`
	Integrator string      `json:"integrator"`
	Ts         float64     `json:"ts"`
	Duration   float64     `json:"duration"`
	Seed       int64       `json:"seed"`
	Ref        dynamo.Pose `json:"ref"`
}

type RunMetadata struct {
	RunInfo
	ID            string             `json:"id"`
	Timestamp     time.Time          `json:"timestamp"`
	Start         dynamo.Pose        `json:"start"`
	Final         dynamo.Pose        `json:"final"`
	Outcome       string             `json:"outcome"`
	Steps         int                `json:"steps"`
	FinalDistance float64            `json:"final_distance"`
	Metrics       map[string]float64 `json:"metrics"`
}

// Sample is one row of a stored trajectory: the pose at Time and the
// command applied from it.
type Sample struct {
	Time    float64
	Pose    dynamo.Pose
	Command dynamo.Command
	Phase   dynamo.Phase
}

func newMetadata(info RunInfo, result *sim.Result) RunMetadata {
	return RunMetadata{
		RunInfo:       info,
		ID:            fmt.Sprintf("%s_%s", info.Strategy, uuid.NewString()),
		Timestamp:     time.Now().UTC(),
		Start:         result.Start,
		Final:         result.Final(),
		Outcome:       result.Outcome.String(),
		Steps:         result.Steps,
		FinalDistance: result.FinalDistance,
		Metrics:       result.Metrics,
	}
}

func (s *Store) Save(info RunInfo, result *sim.Result) (string, error) {
	meta := newMetadata(info, result)
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", fmt.Errorf("storage: write metadata: %w", err)
	}

	csvFile, err := os.Create(filepath.Join(runDir, trajectoryFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := WriteCSV(csvFile, result); err != nil {
		return "", fmt.Errorf("storage: write trajectory: %w", err)
	}
	return meta.ID, nil
}

// WriteCSV writes one row per recorded pose. The last pose has no command
// applied from it and gets a zero command.
func WriteCSV(out io.Writer, result *sim.Result) error {
	w := csv.NewWriter(out)
	if err := w.Write(trajectoryHeader); err != nil {
		return err
	}

	format := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for i, q := range result.Poses {
		var u dynamo.Command
		if i < len(result.Commands) {
			u = result.Commands[i]
		}
		phase := dynamo.PhaseApproach
		if i < len(result.Phases) {
			phase = result.Phases[i]
		}
		var t float64
		if i < len(result.Times) {
			t = result.Times[i]
		}

		row := []string{format(t), format(q.X), format(q.Y), format(q.Theta), format(u.V), format(u.W), phase.String()}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// List returns stored runs, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: run %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadTrajectory(runID string) ([]Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(trajectoryHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("storage: run %s: %w", runID, err)
	}
	if len(records) < 2 {
		return []Sample{}, nil
	}

	samples := make([]Sample, 0, len(records)-1)
	for i, record := range records[1:] {
		var vals [6]float64
		for j := range vals {
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("storage: run %s row %d: %w", runID, i+1, err)
			}
			vals[j] = v
		}
		phase, err := parsePhase(record[6])
		if err != nil {
			return nil, fmt.Errorf("storage: run %s row %d: %w", runID, i+1, err)
		}

		samples = append(samples, Sample{
			Time:    vals[0],
			Pose:    dynamo.Pose{X: vals[1], Y: vals[2], Theta: vals[3]},
			Command: dynamo.Command{V: vals[4], W: vals[5]},
			Phase:   phase,
		})
	}
	return samples, nil
}

func parsePhase(s string) (dynamo.Phase, error) {
	switch s {
	case dynamo.PhaseApproach.String():
		return dynamo.PhaseApproach, nil
	case dynamo.PhaseFinalHeading.String():
		return dynamo.PhaseFinalHeading, nil
	default:
		return 0, fmt.Errorf("unknown phase %q", s)
	}
}
