package geo

import (
	"sort"
	"strings"

	h3 "github.com/uber/h3-go/v4"

	"github.com/ridebench/dispatchsim/pkg/models"
)

// zoneIndexResolution is the H3 resolution for the zone cell index
// (~460m edge). Fine enough to separate adjacent Manhattan zones.
const zoneIndexResolution = 8

// zoneSearchRings is how far the reverse lookup walks out from the query
// cell before falling back to a centroid scan.
const zoneSearchRings = 3

// Zone is a named service-area zone with its centroid.
type Zone struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Mention is a zone name found in free text, with the byte offset where the
// match starts.
type Mention struct {
	Zone  *Zone
	Index int
}

// Registry holds the zone catalog and supports centroid lookup, reverse
// geocoding via an H3 cell index, and zone-name matching in free text.
type Registry struct {
	zones map[int]*Zone
	ids   []int

	// cells maps each zone's centroid cell to the zone ID
	cells map[h3.Cell]int

	// aliases maps lowercased names and name fragments to zone IDs,
	// longest alias first for greedy text matching
	aliases []alias
}

type alias struct {
	text string
	id   int
}

// NewRegistry builds a registry over the Manhattan zone table.
func NewRegistry() *Registry {
	return NewRegistryWithZones(manhattanZones)
}

// NewRegistryWithZones builds a registry over a custom zone table.
func NewRegistryWithZones(zones []Zone) *Registry {
	r := &Registry{
		zones: make(map[int]*Zone, len(zones)),
		cells: make(map[h3.Cell]int, len(zones)),
	}
	for i := range zones {
		z := zones[i]
		r.zones[z.ID] = &z
		r.ids = append(r.ids, z.ID)

		if cell, err := h3.LatLngToCell(h3.NewLatLng(z.Latitude, z.Longitude), zoneIndexResolution); err == nil {
			if _, taken := r.cells[cell]; !taken {
				r.cells[cell] = z.ID
			}
		}

		for _, part := range nameParts(z.Name) {
			r.aliases = append(r.aliases, alias{text: part, id: z.ID})
		}
	}
	sort.Ints(r.ids)
	sort.Slice(r.aliases, func(i, j int) bool {
		if len(r.aliases[i].text) != len(r.aliases[j].text) {
			return len(r.aliases[i].text) > len(r.aliases[j].text)
		}
		return r.aliases[i].text < r.aliases[j].text
	})
	return r
}

// nameParts splits compound zone names ("Times Sq/Theatre District") into
// matchable fragments, keeping the full name as well.
func nameParts(name string) []string {
	lower := strings.ToLower(name)
	parts := []string{lower}
	for _, p := range strings.Split(lower, "/") {
		p = strings.TrimSpace(p)
		if p != "" && p != lower {
			parts = append(parts, p)
		}
	}
	return parts
}

// Zone returns the zone with the given ID.
func (r *Registry) Zone(id int) (*Zone, bool) {
	z, ok := r.zones[id]
	return z, ok
}

// Centroid returns the zone centroid as a Location annotated with the zone.
func (r *Registry) Centroid(id int) (models.Location, bool) {
	z, ok := r.zones[id]
	if !ok {
		return models.Location{}, false
	}
	zoneID := z.ID
	return models.Location{
		Latitude:  z.Latitude,
		Longitude: z.Longitude,
		ZoneID:    &zoneID,
		ZoneName:  z.Name,
	}, true
}

// ZoneFor reverse-geocodes a coordinate to the closest zone. The H3 index
// answers first; coordinates outside every indexed cell fall back to a
// nearest-centroid scan.
func (r *Registry) ZoneFor(lat, lng float64) (*Zone, bool) {
	if len(r.zones) == 0 {
		return nil, false
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), zoneIndexResolution)
	if err == nil {
		if id, ok := r.cells[cell]; ok {
			return r.zones[id], true
		}
		if z := r.nearestInRings(cell, lat, lng); z != nil {
			return z, true
		}
	}

	return r.nearestCentroid(lat, lng), true
}

// nearestInRings walks GridDisk rings around the query cell and returns the
// closest indexed zone found, or nil when the rings are empty.
func (r *Registry) nearestInRings(origin h3.Cell, lat, lng float64) *Zone {
	disk, err := origin.GridDisk(zoneSearchRings)
	if err != nil {
		return nil
	}

	var best *Zone
	bestDist := -1.0
	for _, c := range disk {
		id, ok := r.cells[c]
		if !ok {
			continue
		}
		z := r.zones[id]
		d := PlanarDistance(lat, lng, z.Latitude, z.Longitude)
		if best == nil || d < bestDist || (d == bestDist && z.ID < best.ID) {
			best = z
			bestDist = d
		}
	}
	return best
}

func (r *Registry) nearestCentroid(lat, lng float64) *Zone {
	var best *Zone
	bestDist := -1.0
	for _, id := range r.ids {
		z := r.zones[id]
		d := PlanarDistance(lat, lng, z.Latitude, z.Longitude)
		if best == nil || d < bestDist {
			best = z
			bestDist = d
		}
	}
	return best
}

// MatchName resolves a zone by name, case-insensitive. Compound name
// fragments match too ("theatre district" finds Times Sq/Theatre District).
func (r *Registry) MatchName(name string) (*Zone, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, false
	}
	for _, a := range r.aliases {
		if a.text == needle {
			return r.zones[a.id], true
		}
	}
	return nil, false
}

// FindMentions scans free text for zone names and returns each distinct zone
// mentioned, ordered by where it first appears. Longer names win overlapping
// shorter ones.
func (r *Registry) FindMentions(text string) []Mention {
	lower := strings.ToLower(text)
	seen := make(map[int]bool)
	claimed := make([]bool, len(lower))

	var mentions []Mention
	for _, a := range r.aliases {
		idx := strings.Index(lower, a.text)
		for idx >= 0 {
			if !claimed[idx] && !seen[a.id] {
				for i := idx; i < idx+len(a.text) && i < len(claimed); i++ {
					claimed[i] = true
				}
				seen[a.id] = true
				mentions = append(mentions, Mention{Zone: r.zones[a.id], Index: idx})
				break
			}
			next := strings.Index(lower[idx+1:], a.text)
			if next < 0 {
				break
			}
			idx = idx + 1 + next
		}
	}

	sort.Slice(mentions, func(i, j int) bool {
		if mentions[i].Index != mentions[j].Index {
			return mentions[i].Index < mentions[j].Index
		}
		return mentions[i].Zone.ID < mentions[j].Zone.ID
	})
	return mentions
}

// IDs returns all zone IDs in ascending order.
func (r *Registry) IDs() []int {
	out := make([]int, len(r.ids))
	copy(out, r.ids)
	return out
}

// All returns every zone, ordered by ID.
func (r *Registry) All() []Zone {
	out := make([]Zone, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, *r.zones[id])
	}
	return out
}

// manhattanZones is the NYC TLC taxi zone table for Manhattan south of
// Harlem, with approximate centroids.
var manhattanZones = []Zone{
	{ID: 4, Name: "Alphabet City", Latitude: 40.7260, Longitude: -73.9790},
	{ID: 12, Name: "Battery Park", Latitude: 40.7033, Longitude: -74.0170},
	{ID: 13, Name: "Battery Park City", Latitude: 40.7115, Longitude: -74.0158},
	{ID: 24, Name: "Bloomingdale", Latitude: 40.7988, Longitude: -73.9692},
	{ID: 43, Name: "Central Park", Latitude: 40.7812, Longitude: -73.9665},
	{ID: 45, Name: "Chinatown", Latitude: 40.7158, Longitude: -73.9970},
	{ID: 48, Name: "Clinton East", Latitude: 40.7637, Longitude: -73.9918},
	{ID: 50, Name: "Clinton West", Latitude: 40.7663, Longitude: -73.9985},
	{ID: 68, Name: "East Chelsea", Latitude: 40.7465, Longitude: -73.9972},
	{ID: 79, Name: "East Village", Latitude: 40.7273, Longitude: -73.9837},
	{ID: 87, Name: "Financial District North", Latitude: 40.7107, Longitude: -74.0076},
	{ID: 88, Name: "Financial District South", Latitude: 40.7051, Longitude: -74.0101},
	{ID: 90, Name: "Flatiron", Latitude: 40.7411, Longitude: -73.9897},
	{ID: 100, Name: "Garment District", Latitude: 40.7537, Longitude: -73.9918},
	{ID: 107, Name: "Gramercy", Latitude: 40.7367, Longitude: -73.9830},
	{ID: 113, Name: "Greenwich Village North", Latitude: 40.7340, Longitude: -73.9948},
	{ID: 114, Name: "Greenwich Village South", Latitude: 40.7290, Longitude: -74.0007},
	{ID: 125, Name: "Hudson Sq", Latitude: 40.7264, Longitude: -74.0074},
	{ID: 137, Name: "Kips Bay", Latitude: 40.7423, Longitude: -73.9776},
	{ID: 140, Name: "Lenox Hill East", Latitude: 40.7662, Longitude: -73.9590},
	{ID: 141, Name: "Lenox Hill West", Latitude: 40.7676, Longitude: -73.9648},
	{ID: 142, Name: "Lincoln Square East", Latitude: 40.7736, Longitude: -73.9832},
	{ID: 143, Name: "Lincoln Square West", Latitude: 40.7753, Longitude: -73.9881},
	{ID: 144, Name: "Little Italy/NoLiTa", Latitude: 40.7192, Longitude: -73.9969},
	{ID: 148, Name: "Lower East Side", Latitude: 40.7154, Longitude: -73.9874},
	{ID: 158, Name: "Meatpacking/West Village West", Latitude: 40.7383, Longitude: -74.0079},
	{ID: 161, Name: "Midtown Center", Latitude: 40.7549, Longitude: -73.9787},
	{ID: 162, Name: "Midtown East", Latitude: 40.7541, Longitude: -73.9706},
	{ID: 163, Name: "Midtown North", Latitude: 40.7652, Longitude: -73.9794},
	{ID: 164, Name: "Midtown South", Latitude: 40.7480, Longitude: -73.9864},
	{ID: 166, Name: "Morningside Heights", Latitude: 40.8089, Longitude: -73.9637},
	{ID: 170, Name: "Murray Hill", Latitude: 40.7479, Longitude: -73.9757},
	{ID: 186, Name: "Penn Station/Madison Sq West", Latitude: 40.7505, Longitude: -73.9935},
	{ID: 209, Name: "Seaport", Latitude: 40.7074, Longitude: -74.0023},
	{ID: 211, Name: "SoHo", Latitude: 40.7233, Longitude: -74.0030},
	{ID: 224, Name: "Stuy Town/Peter Cooper Village", Latitude: 40.7318, Longitude: -73.9780},
	{ID: 229, Name: "Sutton Place/Turtle Bay North", Latitude: 40.7577, Longitude: -73.9640},
	{ID: 230, Name: "Times Sq/Theatre District", Latitude: 40.7590, Longitude: -73.9845},
	{ID: 231, Name: "TriBeCa/Civic Center", Latitude: 40.7163, Longitude: -74.0086},
	{ID: 232, Name: "Two Bridges/Seward Park", Latitude: 40.7128, Longitude: -73.9899},
	{ID: 233, Name: "UN/Turtle Bay South", Latitude: 40.7519, Longitude: -73.9679},
	{ID: 234, Name: "Union Sq", Latitude: 40.7359, Longitude: -73.9904},
	{ID: 236, Name: "Upper East Side North", Latitude: 40.7736, Longitude: -73.9566},
	{ID: 237, Name: "Upper East Side South", Latitude: 40.7685, Longitude: -73.9624},
	{ID: 238, Name: "Upper West Side North", Latitude: 40.7957, Longitude: -73.9722},
	{ID: 239, Name: "Upper West Side South", Latitude: 40.7850, Longitude: -73.9766},
	{ID: 246, Name: "West Chelsea/Hudson Yards", Latitude: 40.7531, Longitude: -74.0021},
	{ID: 249, Name: "West Village", Latitude: 40.7358, Longitude: -74.0036},
	{ID: 261, Name: "World Trade Center", Latitude: 40.7118, Longitude: -74.0131},
	{ID: 262, Name: "Yorkville East", Latitude: 40.7762, Longitude: -73.9465},
	{ID: 263, Name: "Yorkville West", Latitude: 40.7773, Longitude: -73.9515},
}
