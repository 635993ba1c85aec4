package game

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// IntList is a card index sequence stored as a JSON text column.
type IntList []int

func (l IntList) Value() (driver.Value, error) {
	b, err := json.Marshal([]int(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *IntList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("intlist: cannot scan %T", src)
	}
	return json.Unmarshal(b, (*[]int)(l))
}
