package accounting

import (
	"Go2NetAccounting/internal/model"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const minFields = 4

const (
	ReasonInsufficientFields = "insufficient fields"
	ReasonNotANumber         = "not a number"
)

var (
	// ErrInsufficientFields is wrapped when a line has fewer than four tokens.
	ErrInsufficientFields = errors.New(ReasonInsufficientFields)
	// ErrNotANumber is wrapped when the byte or packet count is not a non-negative integer.
	ErrNotANumber = errors.New(ReasonNotANumber)
)

// MalformedRecordError describes why a single accounting line could not be parsed.
type MalformedRecordError struct {
	Reason     string
	FieldCount int
	FieldName  string
	Line       string
}

func (e *MalformedRecordError) Error() string {
	if e.Reason == ReasonNotANumber {
		return fmt.Sprintf("line with invalid number for field '%s': '%s'", e.FieldName, e.Line)
	}
	return fmt.Sprintf("expected line with %d fields but found only %d: '%s'", minFields, e.FieldCount, e.Line)
}

func (e *MalformedRecordError) Unwrap() error {
	if e.Reason == ReasonNotANumber {
		return ErrNotANumber
	}
	return ErrInsufficientFields
}

// ParseLine parses a single accounting line, e.g. "10.0.1.1 10.0.1.2 168 2 * *".
// Tokens after the packet count are ignored.
func ParseLine(line string) (model.FlowRecord, error) {
	fields := strings.Fields(line)
	if len(fields) < minFields {
		return model.FlowRecord{}, &MalformedRecordError{
			Reason:     ReasonInsufficientFields,
			FieldCount: len(fields),
			Line:       line,
		}
	}

	bytes, err := parseCount(line, "byte", fields[2])
	if err != nil {
		return model.FlowRecord{}, err
	}
	packets, err := parseCount(line, "packet", fields[3])
	if err != nil {
		return model.FlowRecord{}, err
	}

	return model.FlowRecord{
		SourceAddress:      fields[0],
		DestinationAddress: fields[1],
		ByteCount:          bytes,
		PacketCount:        packets,
	}, nil
}

func parseCount(line, field, value string) (uint64, error) {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, &MalformedRecordError{Reason: ReasonNotANumber, FieldName: field, Line: line}
	}
	return n, nil
}

// ParseDocument parses every non-blank line of text. Lines that fail to parse are
// left out of the result and handed to report with their 1-based line number.
// The order of the returned records follows the order of the lines.
func ParseDocument(text string, report func(lineNo int, err error)) []model.FlowRecord {
	lines := strings.Split(text, "\n")
	records := make([]model.FlowRecord, 0, len(lines))

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		record, err := ParseLine(strings.TrimRight(line, "\r"))
		if err != nil {
			if report != nil {
				report(i+1, err)
			}
			continue
		}
		records = append(records, record)
	}

	return records
}
