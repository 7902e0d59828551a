// Package diff computes structural change summaries between two workflow
// snapshots.
//
// Maps are compared key by key. Arrays are matched by an identity key when
// every element on both sides is an object carrying a distinct value for one
// of IdentityKeys, and by index otherwise. A whole array element counts as a
// single addition or removal; added or removed objects are expanded to their
// fields.
package diff

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"workflowguard/backend/pkg/models"
)

// IdentityKeys are the object fields used to match array elements across
// snapshots, in priority order. HubSpot flow actions carry "actionId".
var IdentityKeys = []string{"actionId", "id"}

// MaxPaths bounds the number of paths recorded per category. Counts are
// always exact.
const MaxPaths = 50

const rootPath = "$"

// Summarize describes what changed from prev to curr. A nil prev marks the
// initial snapshot, for which every element of curr is an addition.
// Unexpected shapes never fail: they degrade to a best-effort summary.
func Summarize(prev, curr any) (summary models.ChangeSummary) {
	defer func() {
		if r := recover(); r != nil {
			summary = models.ChangeSummary{
				Initial: prev == nil,
				Summary: "Changes could not be summarized",
			}
		}
	}()

	if curr == nil {
		curr = map[string]any{}
	}
	c := &collector{}
	if prev == nil {
		c.added("", normalize(curr))
		return c.result(true)
	}
	c.compare("", normalize(prev), normalize(curr))
	return c.result(false)
}

// SummarizeVersions summarizes curr relative to prev, where prev is nil for
// the first version of a workflow.
func SummarizeVersions(prev, curr *models.WorkflowVersion) models.ChangeSummary {
	var currData any
	if curr != nil {
		currData = curr.Data
	}
	if prev == nil {
		return Summarize(nil, currData)
	}
	var prevData any = prev.Data
	if prev.Data == nil {
		prevData = map[string]any{}
	}
	return Summarize(prevData, currData)
}

type collector struct {
	addedN, removedN, modifiedN int
	addedP, removedP, modifiedP []string
}

func (c *collector) result(initial bool) models.ChangeSummary {
	s := models.ChangeSummary{
		Initial:       initial,
		Added:         c.addedN,
		Removed:       c.removedN,
		Modified:      c.modifiedN,
		AddedPaths:    c.addedP,
		RemovedPaths:  c.removedP,
		ModifiedPaths: c.modifiedP,
	}
	s.Summary = describe(s)
	return s
}

func (c *collector) record(n *int, paths *[]string, path string) {
	*n++
	if path == "" {
		path = rootPath
	}
	if len(*paths) < MaxPaths {
		*paths = append(*paths, path)
	}
}

func (c *collector) added(path string, v any) {
	c.walk(path, v, func(p string) { c.record(&c.addedN, &c.addedP, p) })
}

func (c *collector) removed(path string, v any) {
	c.walk(path, v, func(p string) { c.record(&c.removedN, &c.removedP, p) })
}

// walk expands objects to their fields and reports array elements and
// scalars as single elements.
func (c *collector) walk(path string, v any, emit func(string)) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			if path != "" {
				emit(path)
			}
			return
		}
		for _, k := range sortedKeys(t) {
			c.walk(joinKey(path, k), t[k], emit)
		}
	case []any:
		if len(t) == 0 {
			emit(path)
			return
		}
		key, ok := identityKey(t, nil)
		for i, elem := range t {
			if ok {
				emit(idPath(path, key, elem.(map[string]any)[key]))
			} else {
				emit(indexPath(path, i))
			}
		}
	default:
		emit(path)
	}
}

func (c *collector) compare(path string, a, b any) {
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok {
			c.record(&c.modifiedN, &c.modifiedP, path)
			return
		}
		c.compareMaps(path, at, bt)
	case []any:
		bt, ok := b.([]any)
		if !ok {
			c.record(&c.modifiedN, &c.modifiedP, path)
			return
		}
		c.compareSlices(path, at, bt)
	default:
		if !scalarEqual(a, b) {
			c.record(&c.modifiedN, &c.modifiedP, path)
		}
	}
}

func (c *collector) compareMaps(path string, a, b map[string]any) {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	for _, k := range ordered {
		av, inA := a[k]
		bv, inB := b[k]
		child := joinKey(path, k)
		switch {
		case !inA:
			c.added(child, bv)
		case !inB:
			c.removed(child, av)
		default:
			c.compare(child, av, bv)
		}
	}
}

func (c *collector) compareSlices(path string, a, b []any) {
	if key, ok := identityKey(a, b); ok {
		c.compareByIdentity(path, key, a, b)
		return
	}

	common := min(len(a), len(b))
	for i := 0; i < common; i++ {
		c.compare(indexPath(path, i), a[i], b[i])
	}
	for i := common; i < len(b); i++ {
		c.record(&c.addedN, &c.addedP, indexPath(path, i))
	}
	for i := common; i < len(a); i++ {
		c.record(&c.removedN, &c.removedP, indexPath(path, i))
	}
}

func (c *collector) compareByIdentity(path, key string, a, b []any) {
	before := make(map[string]map[string]any, len(a))
	for _, elem := range a {
		m := elem.(map[string]any)
		before[idString(m[key])] = m
	}
	seen := make(map[string]struct{}, len(b))
	for _, elem := range b {
		m := elem.(map[string]any)
		id := idString(m[key])
		seen[id] = struct{}{}
		if old, ok := before[id]; ok {
			c.compareMaps(idPath(path, key, m[key]), old, m)
		} else {
			c.record(&c.addedN, &c.addedP, idPath(path, key, m[key]))
		}
	}
	for _, elem := range a {
		m := elem.(map[string]any)
		if _, ok := seen[idString(m[key])]; !ok {
			c.record(&c.removedN, &c.removedP, idPath(path, key, m[key]))
		}
	}
}

// identityKey returns the first IdentityKeys entry that identifies every
// element of both slices uniquely. A nil second slice is ignored.
func identityKey(a, b []any) (string, bool) {
	if len(a)+len(b) == 0 {
		return "", false
	}
	for _, key := range IdentityKeys {
		if identifies(a, key) && identifies(b, key) {
			return key, true
		}
	}
	return "", false
}

func identifies(elems []any, key string) bool {
	seen := make(map[string]struct{}, len(elems))
	for _, elem := range elems {
		m, ok := elem.(map[string]any)
		if !ok {
			return false
		}
		v, ok := m[key]
		if !ok || v == nil {
			return false
		}
		id := idString(v)
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

func describe(s models.ChangeSummary) string {
	if s.Initial {
		return fmt.Sprintf("Initial snapshot: %s", plural(s.Added, "element", "elements"))
	}
	if !s.HasChanges() {
		return "No changes"
	}
	var parts []string
	if s.Added > 0 {
		parts = append(parts, plural(s.Added, "addition", "additions"))
	}
	if s.Removed > 0 {
		parts = append(parts, plural(s.Removed, "removal", "removals"))
	}
	if s.Modified > 0 {
		parts = append(parts, plural(s.Modified, "modification", "modifications"))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return strconv.Itoa(n) + " " + many
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	if path == "" {
		path = rootPath
	}
	return path + "[" + strconv.Itoa(i) + "]"
}

func idPath(path, key string, id any) string {
	if path == "" {
		path = rootPath
	}
	return path + "[" + key + "=" + idString(id) + "]"
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return a == b
}

// normalize converts arbitrary decoded or hand-built values into the
// canonical JSON tree: map[string]any, []any, string, float64, bool, nil.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Sprint(v)
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	default:
		return fmt.Sprint(v)
	}
}
