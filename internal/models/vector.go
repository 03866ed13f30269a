package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Vector 嵌入向量，数据库中以JSON存储
type Vector []float32

// Value 实现driver.Valuer接口
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan 实现sql.Scanner接口
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	switch data := value.(type) {
	case []byte:
		return json.Unmarshal(data, v)
	case string:
		return json.Unmarshal([]byte(data), v)
	default:
		return fmt.Errorf("unsupported vector column type %T", value)
	}
}
