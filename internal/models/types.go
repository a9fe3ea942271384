package models

import (
	"encoding/json"
	"sort"
)

// Core field names. Anything else a record carries comes from the detail
// page's attribute table and lives in Record.Extra.
const (
	FieldName       = "name"
	FieldGenre      = "genre"
	FieldUpdateDate = "update_date"
	FieldOpenDate   = "open_date"
	FieldURL        = "url"
	FieldPostalCode = "postal_code"
)

var coreFields = []string{FieldName, FieldGenre, FieldUpdateDate, FieldOpenDate, FieldURL, FieldPostalCode}

func IsCoreField(name string) bool {
	for _, f := range coreFields {
		if f == name {
			return true
		}
	}
	return false
}

type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Record is one harvested detail page. URL is its identity.
type Record struct {
	Name       string
	Genre      string
	UpdateDate string
	OpenDate   string
	URL        string
	PostalCode string
	Extra      []Field
}

// Get returns the value for name, core fields first, then extras.
func (r Record) Get(name string) (string, bool) {
	switch name {
	case FieldName:
		return r.Name, true
	case FieldGenre:
		return r.Genre, true
	case FieldUpdateDate:
		return r.UpdateDate, true
	case FieldOpenDate:
		return r.OpenDate, true
	case FieldURL:
		return r.URL, true
	case FieldPostalCode:
		return r.PostalCode, r.PostalCode != ""
	}
	for _, f := range r.Extra {
		if f.Key == name {
			return f.Value, true
		}
	}
	return "", false
}

// Value is Get without the presence flag.
func (r Record) Value(name string) string {
	v, _ := r.Get(name)
	return v
}

// Fields lists the record as ordered pairs: core fields, then extras in
// table order. postal_code is omitted when empty.
func (r Record) Fields() []Field {
	out := []Field{
		{FieldName, r.Name},
		{FieldGenre, r.Genre},
		{FieldUpdateDate, r.UpdateDate},
		{FieldOpenDate, r.OpenDate},
		{FieldURL, r.URL},
	}
	if r.PostalCode != "" {
		out = append(out, Field{FieldPostalCode, r.PostalCode})
	}
	return append(out, r.Extra...)
}

// Project returns the values for columns in order, "" for missing ones.
func (r Record) Project(columns Schema) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		row[i] = r.Value(col)
	}
	return row
}

func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(r.Extra)+6)
	for _, f := range r.Fields() {
		m[f.Key] = f.Value
	}
	return json.Marshal(m)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*r = Record{
		Name:       m[FieldName],
		Genre:      m[FieldGenre],
		UpdateDate: m[FieldUpdateDate],
		OpenDate:   m[FieldOpenDate],
		URL:        m[FieldURL],
		PostalCode: m[FieldPostalCode],
	}
	var extra []string
	for k := range m {
		if !IsCoreField(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		r.Extra = append(r.Extra, Field{Key: k, Value: m[k]})
	}
	return nil
}

// Schema is the ordered column list of the output.
type Schema []string

// Entry is the checkpoint kept per query key.
type Entry struct {
	Key   string `json:"key"`
	Value Record `json:"value"`
}
