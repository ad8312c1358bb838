package processor

import (
	"bufio"
	"encoding/json"
	"io"
)

func parseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any
	for scanner.Scan() {
		var j any
		if err := json.Unmarshal(scanner.Bytes(), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}
