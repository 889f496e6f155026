package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sungwon/mailrelay/internal/mailer"
)

// readRecipients parses email,name rows. A first row without an "@" in any
// column is treated as a header naming the email and name columns; otherwise
// column 0 is the email and column 1 (if present) the name. Blank lines and
// rows with an empty email are skipped.
func readRecipients(r io.Reader) ([]mailer.Recipient, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	emailCol, nameCol := 0, 1
	var out []mailer.Recipient

	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}

		if line == 1 && isHeader(row) {
			emailCol, nameCol = -1, -1
			for i, col := range row {
				switch strings.ToLower(strings.TrimSpace(col)) {
				case "email", "e-mail", "email_address":
					emailCol = i
				case "name", "full_name":
					nameCol = i
				}
			}
			if emailCol < 0 {
				return nil, fmt.Errorf("csv header has no email column: %v", row)
			}
			continue
		}

		email := field(row, emailCol)
		if email == "" {
			continue
		}
		out = append(out, mailer.Recipient{Email: email, Name: field(row, nameCol)})
	}

	return out, nil
}

func isHeader(row []string) bool {
	for _, col := range row {
		if strings.Contains(col, "@") {
			return false
		}
	}
	return true
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
