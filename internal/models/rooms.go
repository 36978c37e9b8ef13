package models

// RoomRecord is one normalized room. Key names depend on the view it was
// produced for, so it stays a loose mapping.
type RoomRecord map[string]any

// RoomsData is the document written to e_rooms_details_floor_<n>.json and
// a_rooms_details_floor_<n>.json.
type RoomsData struct {
	ProjectName string       `json:"project_name"`
	FloorNumber string       `json:"floor_number"`
	Rooms       []RoomRecord `json:"rooms"`
}
