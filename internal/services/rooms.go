package services

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/Lllllllleong/drawingflow/internal/config"
	"github.com/Lllllllleong/drawingflow/internal/models"
)

//go:embed templates/*.json
var embeddedTemplates embed.FS

// DefaultTemplates returns the built-in room templates.
func DefaultTemplates() fs.FS {
	sub, err := fs.Sub(embeddedTemplates, "templates")
	if err != nil {
		panic(fmt.Sprintf("embedded room templates: %v", err))
	}
	return sub
}

// ViewKind selects the room record shape and its template.
type ViewKind string

const (
	ViewEngineering   ViewKind = "e_rooms"
	ViewArchitectural ViewKind = "a_rooms"
)

var wallDirections = []string{"north", "south", "east", "west"}

// Source keys tried in order for a room's identity.
var (
	roomNumberKeys = []string{"number", "room_number", "code", "id"}
	roomNameKeys   = []string{"name", "room_name"}
)

// RoomsEngine merges extracted room entries onto discipline templates.
type RoomsEngine struct {
	templates fs.FS
	mode      string
	floor     string
	logger    *slog.Logger
}

// NewRoomsEngine returns an engine reading "<view>_template.json" from
// templates. mode is config.MergePermissive or config.MergeStrict; floor is
// the externally supplied floor number and may be empty.
func NewRoomsEngine(templates fs.FS, mode, floor string, logger *slog.Logger) *RoomsEngine {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomsEngine{templates: templates, mode: mode, floor: floor, logger: logger}
}

// RoomArtifacts describes the room files written for one architectural document.
type RoomArtifacts struct {
	EngineeringPath   string
	ArchitecturalPath string
	ReflectedCeiling  bool
}

// WriteArtifacts generates both room views for doc and stores them in folder,
// next to the document's structured JSON.
func (e *RoomsEngine) WriteArtifacts(ctx context.Context, store Store, folder string, file models.DrawingFile, doc map[string]any) (RoomArtifacts, error) {
	var out RoomArtifacts
	out.ReflectedCeiling = strings.Contains(strings.ToUpper(file.Path), "REFLECTED CEILING PLAN")
	logger := e.logger.With("file", file.Path)
	if out.ReflectedCeiling {
		logger.Info("Document is a reflected ceiling plan.")
	}

	if job := jobNumber(doc); job != "" {
		logger.Info("Job number found.", "jobNumber", job)
	}

	for _, view := range []ViewKind{ViewEngineering, ViewArchitectural} {
		data, err := encodeJSON(e.Generate(doc, view))
		if err != nil {
			return out, fmt.Errorf("failed to encode %s rooms: %w", view, err)
		}
		rel := folder + "/" + fmt.Sprintf("%s_details_floor_%s.json", view, e.floor)
		if err := store.Put(ctx, rel, data); err != nil {
			return out, fmt.Errorf("failed to write %s rooms: %w", view, err)
		}
		if view == ViewEngineering {
			out.EngineeringPath = store.Location(rel)
		} else {
			out.ArchitecturalPath = store.Location(rel)
		}
	}
	logger.Info("Created room templates.", "eRooms", out.EngineeringPath, "aRooms", out.ArchitecturalPath)
	return out, nil
}

// Generate builds the view of doc's rooms. The result depends only on doc,
// view and the template, so repeated calls encode to identical bytes.
func (e *RoomsEngine) Generate(doc map[string]any, view ViewKind) models.RoomsData {
	template := e.loadTemplate(view)
	out := models.RoomsData{
		ProjectName: projectName(doc),
		FloorNumber: e.floor,
		Rooms:       []models.RoomRecord{},
	}

	entries := roomList(doc)
	if len(entries) == 0 {
		e.logger.Warn("No rooms found in parsed data.", "view", string(view))
	}

	for i, item := range entries {
		room, ok := item.(map[string]any)
		if !ok {
			e.logger.Warn("Skipping room entry that is not an object.", "view", string(view), "index", i)
			continue
		}
		number := firstString(room, roomNumberKeys)
		name := firstString(room, roomNameKeys)
		if number == "" && name == "" {
			e.logger.Warn("Skipping room without number or name.", "view", string(view), "index", i)
			continue
		}
		out.Rooms = append(out.Rooms, e.merge(template, room, view, number, name))
	}
	return out
}

func (e *RoomsEngine) merge(template map[string]any, room map[string]any, view ViewKind, number, name string) models.RoomRecord {
	rec := deepCopy(template).(map[string]any)

	if !strings.EqualFold(e.mode, config.MergeStrict) {
		for k, v := range room {
			rec[k] = deepCopy(v)
		}
	}

	switch view {
	case ViewEngineering:
		rec["room_id"] = number
		rec["room_name"] = name
	case ViewArchitectural:
		rec["roomId"] = number
		rec["name"] = name
		if finish, ok := room["ceiling_finish"].(string); ok {
			rec["ceiling_finish"] = finish
		} else if _, ok := rec["ceiling_finish"]; !ok {
			rec["ceiling_finish"] = ""
		}
		// A walls value the model gave in another shape is kept as is.
		raw, present := rec["walls"]
		if !present {
			raw = map[string]any{}
			rec["walls"] = raw
		}
		if walls, ok := raw.(map[string]any); ok {
			for _, dir := range wallDirections {
				if _, ok := walls[dir]; !ok {
					walls[dir] = ""
				}
			}
		}
		for _, k := range []string{"ceiling_height", "dimensions"} {
			if _, ok := rec[k]; !ok {
				rec[k] = ""
			}
		}
	}
	return models.RoomRecord(rec)
}

// loadTemplate returns the first room skeleton of the view's template, or an
// empty one when the template is unreadable.
func (e *RoomsEngine) loadTemplate(view ViewKind) map[string]any {
	name := string(view) + "_template.json"
	data, err := fs.ReadFile(e.templates, name)
	if err != nil {
		e.logger.Error("Template file not found.", "template", name, "errorKind", models.ErrTemplateMissingOrInvalid, "error", err)
		return map[string]any{}
	}

	var parsed struct {
		Rooms []map[string]any `json:"rooms"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		e.logger.Error("Template file is not valid.", "template", name, "errorKind", models.ErrTemplateMissingOrInvalid, "error", err)
		return map[string]any{}
	}
	if len(parsed.Rooms) == 0 || parsed.Rooms[0] == nil {
		e.logger.Error("Template has no room skeleton.", "template", name, "errorKind", models.ErrTemplateMissingOrInvalid)
		return map[string]any{}
	}
	return parsed.Rooms[0]
}

// roomList finds the room array: architectural_drawing.rooms, then rooms, then
// the first top-level object (by key order) carrying a rooms array.
func roomList(doc map[string]any) []any {
	if ad, ok := doc["architectural_drawing"].(map[string]any); ok {
		if rooms, ok := ad["rooms"].([]any); ok {
			return rooms
		}
	}
	if rooms, ok := doc["rooms"].([]any); ok {
		return rooms
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if obj, ok := doc[k].(map[string]any); ok {
			if rooms, ok := obj["rooms"].([]any); ok {
				return rooms
			}
		}
	}
	return nil
}

func projectName(doc map[string]any) string {
	ad, _ := doc["architectural_drawing"].(map[string]any)
	if info, ok := ad["project_info"].(map[string]any); ok {
		if addr, ok := info["project_address"].(string); ok {
			if name := strings.TrimSpace(strings.Split(addr, ",")[0]); name != "" {
				return name
			}
		}
	}
	if title, ok := ad["title"].(string); ok {
		if name := strings.TrimSpace(strings.Split(title, " - ")[0]); name != "" {
			return name
		}
	}
	if name, ok := doc["project_name"].(string); ok {
		return strings.TrimSpace(name)
	}
	return ""
}

func jobNumber(doc map[string]any) string {
	ad, _ := doc["architectural_drawing"].(map[string]any)
	if job := scalarString(ad["job_number"]); job != "" {
		return job
	}
	return scalarString(doc["job_number"])
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(scalarString(m[k])); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case models.RoomRecord:
		return deepCopy(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
