package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shpitdev/inbound-lead-agent/internal/lead"
)

// ReadLeadsCSV reads leads from a CSV with at least email and name columns;
// company, phone and message are optional. Header names are
// case-insensitive. Rows failing validation are returned with Err set.
func ReadLeadsCSV(r io.Reader) ([]Input, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"email", "name"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var inputs []Input
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return inputs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		raw := lead.Lead{
			Email:   get("email"),
			Name:    get("name"),
			Company: get("company"),
			Phone:   get("phone"),
			Message: get("message"),
		}
		l, err := raw.Validate()
		if err != nil {
			inputs = append(inputs, Input{Lead: raw, Err: err})
			continue
		}
		inputs = append(inputs, Input{Lead: l})
	}
}

// WriteCSV writes rows as a CSV with the stable Header() ordering.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Email,
			r.Name,
			r.Status,
			r.Category,
			r.Reason,
			r.DraftSubject,
			r.Delivery,
			strconv.FormatBool(r.Simulated),
			r.MessageID,
			r.SlackTS,
			r.Error,
			r.RunID,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads rows written by WriteCSV. Extra columns are ignored.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range Header() {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		get := func(col string) string {
			i := index[col]
			if i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		simulated, _ := strconv.ParseBool(get("simulated"))
		rows = append(rows, Row{
			Email:        get("email"),
			Name:         get("name"),
			Status:       get("status"),
			Category:     get("category"),
			Reason:       get("reason"),
			DraftSubject: get("draft_subject"),
			Delivery:     get("delivery"),
			Simulated:    simulated,
			MessageID:    get("message_id"),
			SlackTS:      get("slack_ts"),
			Error:        get("error"),
			RunID:        get("run_id"),
		})
	}
}
