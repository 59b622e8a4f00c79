package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// ValueKind 是元数据值的类型标签。
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// String 返回类型标签的名称。
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// MetaValue 是元数据中的一个带标签的值：字符串、数字、布尔、列表、嵌套映射或 null。
// 零值表示 null。
type MetaValue struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []MetaValue
	m    Metadata
}

// String 构造字符串值。
func String(s string) MetaValue {
	return MetaValue{kind: KindString, str: s}
}

// Number 构造数字值。
func Number(f float64) MetaValue {
	return MetaValue{kind: KindNumber, num: f}
}

// Bool 构造布尔值。
func Bool(b bool) MetaValue {
	return MetaValue{kind: KindBool, b: b}
}

// List 构造列表值。
func List(items ...MetaValue) MetaValue {
	return MetaValue{kind: KindList, list: items}
}

// Map 构造嵌套映射值。
func Map(m Metadata) MetaValue {
	return MetaValue{kind: KindMap, m: m}
}

// Null 返回 null 值，等同于零值。
func Null() MetaValue {
	return MetaValue{}
}

// Kind 返回值的类型标签。
func (v MetaValue) Kind() ValueKind {
	return v.kind
}

// AsString 在值为字符串时返回它和 true。下面几个 As 方法同理。
func (v MetaValue) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v MetaValue) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v MetaValue) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v MetaValue) AsList() ([]MetaValue, bool) {
	return v.list, v.kind == KindList
}

func (v MetaValue) AsMap() (Metadata, bool) {
	return v.m, v.kind == KindMap
}

// Equal 按值比较两个 MetaValue。
func (v MetaValue) Equal(o MetaValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.m.Equal(o.m)
	default:
		return true
	}
}

// Interface 把 MetaValue 转回普通的 Go 值，便于序列化给外部 API。
func (v MetaValue) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		return v.m.Interface()
	default:
		return nil
	}
}

// ValueOf 把任意 JSON 兼容的 Go 值转换为 MetaValue。
func ValueOf(x any) (MetaValue, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case MetaValue:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return MetaValue{}, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case []any:
		items := make([]MetaValue, 0, len(t))
		for _, item := range t {
			mv, err := ValueOf(item)
			if err != nil {
				return MetaValue{}, err
			}
			items = append(items, mv)
		}
		return List(items...), nil
	case []string:
		items := make([]MetaValue, 0, len(t))
		for _, s := range t {
			items = append(items, String(s))
		}
		return List(items...), nil
	case map[string]any:
		m, err := MetadataOf(t)
		if err != nil {
			return MetaValue{}, err
		}
		return Map(m), nil
	case Metadata:
		return Map(t), nil
	default:
		return MetaValue{}, fmt.Errorf("unsupported metadata value type %T", x)
	}
}

// MarshalJSON 实现 json.Marshaler。
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	mv, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = mv
	return nil
}

// Metadata 是偏好记录上开放式的键值上下文，例如置信度或转写片段。
type Metadata map[string]MetaValue

// MetadataOf 把 map[string]any 转换为 Metadata。
func MetadataOf(raw map[string]any) (Metadata, error) {
	if raw == nil {
		return nil, nil
	}
	m := make(Metadata, len(raw))
	for k, x := range raw {
		mv, err := ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("metadata key %q: %w", k, err)
		}
		m[k] = mv
	}
	return m, nil
}

// Merge 返回一个新的 Metadata：patch 中的键覆盖原有的键，其余保持不变。
func (m Metadata) Merge(patch Metadata) Metadata {
	out := make(Metadata, len(m)+len(patch))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Equal 按键值比较两个 Metadata，nil 与空映射视为相等。
func (m Metadata) Equal(o Metadata) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Keys 返回排序后的键。
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Interface 转换为 map[string]any。
func (m Metadata) Interface() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

// GormDataType 让 GORM 把 Metadata 存为 JSON 文本列。
func (Metadata) GormDataType() string {
	return "text"
}

// Value 实现 driver.Valuer，写入时序列化为 JSON 文本。
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner。
func (m *Metadata) Scan(src any) error {
	var data []byte
	switch t := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		data = t
	case string:
		data = []byte(t)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		*m = Metadata{}
		return nil
	}
	out := Metadata{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	*m = out
	return nil
}
