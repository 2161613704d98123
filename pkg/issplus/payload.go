package issplus

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Payload is the tabular body carried by ISS+ message frames: column names
// plus rows of cells.
type Payload struct {
	Columns []string        `json:"columns"`
	Data    [][]interface{} `json:"data"`
}

// ParsePayload decodes a frame body into its columns and rows.
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("issplus: decode payload: %w", err)
	}
	return &p, nil
}

// Len reports the number of rows.
func (p *Payload) Len() int {
	return len(p.Data)
}

// Records converts the rows into column-keyed maps. The feed delivers
// priced cells as [value, precision] pairs; those fold into decimals
// rounded to the advertised precision, everything else passes through.
func (p *Payload) Records() []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(p.Data))
	for _, row := range p.Data {
		rec := make(map[string]interface{}, len(p.Columns))
		for i, col := range p.Columns {
			if i >= len(row) {
				break
			}
			rec[col] = cellValue(row[i])
		}
		records = append(records, rec)
	}
	return records
}

func cellValue(cell interface{}) interface{} {
	pair, ok := cell.([]interface{})
	if !ok || len(pair) != 2 {
		return cell
	}
	value, ok := pair[0].(float64)
	if !ok {
		return cell
	}
	precision, ok := pair[1].(float64)
	if !ok || precision < 0 {
		return cell
	}
	return decimal.NewFromFloat(value).Round(int32(precision))
}
