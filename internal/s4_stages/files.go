package s4_stages

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wonny/stagegate/internal/contracts"
	"github.com/wonny/stagegate/internal/s0_data/ingest"
)

// StageFileColumns is the header of a persisted stage file
var StageFileColumns = []string{"date", "entity_id", "stage", "stage_name", "stage_reason"}

// WriteStagesCSV writes driver output as a stage file
func WriteStagesCSV(w io.Writer, records []contracts.StageRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(StageFileColumns); err != nil {
		return fmt.Errorf("write stage header: %w", err)
	}

	for _, r := range records {
		row := []string{contracts.ISODate(r.Date), r.EntityID, r.Stage.String(), r.StageName, r.Reason()}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write stage row %s: %w", contracts.ISODate(r.Date), err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ErrMalformedStageFile marks a stage file that cannot be trusted
var ErrMalformedStageFile = errors.New("malformed stage file")

// ReadStagesCSV parses a stage file
// entity 컬럼은 entity_id 또는 spider_id. 둘 다 없으면 fallbackEntity(파일명) 사용
func ReadStagesCSV(r io.Reader, fallbackEntity string) ([]contracts.StageRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrMalformedStageFile, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	dateCol, okDate := idx["date"]
	stageCol, okStage := idx["stage"]
	if !okDate || !okStage {
		return nil, fmt.Errorf("%w: header must contain date and stage, got %v", ErrMalformedStageFile, header)
	}
	entityCol, okEntity := idx["entity_id"]
	if !okEntity {
		entityCol, okEntity = idx["spider_id"]
	}
	if !okEntity && fallbackEntity == "" {
		return nil, fmt.Errorf("%w: no entity column and no fallback entity", ErrMalformedStageFile)
	}
	nameCol, okName := idx["stage_name"]
	reasonCol, okReason := idx["stage_reason"]

	var records []contracts.StageRecord
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedStageFile, line, err)
		}

		cell := func(col int, ok bool) string {
			if !ok || col >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[col])
		}

		date, err := ingest.ParseDate(cell(dateCol, true))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedStageFile, line, err)
		}
		stage, err := contracts.ParseStage(cell(stageCol, true))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedStageFile, line, err)
		}

		entity := cell(entityCol, okEntity)
		if entity == "" {
			entity = fallbackEntity
		}
		name := cell(nameCol, okName)
		if name == "" {
			name = stage.Name()
		}

		records = append(records, contracts.StageRecord{
			EntityID:  entity,
			Date:      date,
			Stage:     stage,
			StageName: name,
			Reasons:   contracts.SplitReason(cell(reasonCol, okReason)),
		})
	}
	return records, nil
}
