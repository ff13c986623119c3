// Package publish reconciles deliverables with the entity graph: it finds
// or creates the AssetType, Asset, AssetVersion and Component chain for
// each deliverable, merges metadata, attaches thumbnails and commits
// component files into locations.
package publish

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/util"
)

// ErrMissingID is returned when an identity value is neither a primitive
// nor a reference carrying an id
var ErrMissingID = errors.New("identity value has no id")

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// BuildQuery returns the expression selecting the id of every entityType
// matching fields, one clause per key in insertion order:
//
//	select id from Asset where name is "foo" and type.id is "X"
//
// References are matched on their id. The "metadata" key is skipped.
func BuildQuery(entityType string, fields *session.Data) (string, error) {
	var clauses []string
	var err error
	fields.Range(func(key string, value any) bool {
		if key == "metadata" {
			return true
		}
		var clause string
		clause, err = buildClause(key, value)
		if err != nil {
			err = fmt.Errorf("%s.%s: %w", entityType, key, err)
			return false
		}
		clauses = append(clauses, clause)
		return true
	})
	if err != nil {
		return "", err
	}

	query := "select id from " + entityType
	if len(clauses) > 0 {
		query += " where " + strings.Join(clauses, " and ")
	}
	util.DebugLog("%s", query)
	return query, nil
}

func buildClause(key string, value any) (string, error) {
	if value == nil {
		return key + " is none", nil
	}
	if s, ok := primitiveString(value); ok {
		return fmt.Sprintf(`%s is "%s"`, key, quoteEscaper.Replace(s)), nil
	}
	id, ok := referenceID(value)
	if !ok || id == "" {
		return "", fmt.Errorf("%T value: %w", value, ErrMissingID)
	}
	return fmt.Sprintf(`%s.id is "%s"`, key, quoteEscaper.Replace(id)), nil
}

func primitiveString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

func referenceID(value any) (string, bool) {
	switch v := value.(type) {
	case session.Ref:
		return v.ID, true
	case *session.Ref:
		if v != nil {
			return v.ID, true
		}
	case session.Entity:
		return v.ID, true
	case *session.Entity:
		if v != nil {
			return v.ID, true
		}
	case map[string]any:
		id, ok := v["id"]
		if !ok || id == nil {
			return "", false
		}
		return fmt.Sprint(id), true
	case map[string]string:
		id, ok := v["id"]
		return id, ok
	}
	return "", false
}
