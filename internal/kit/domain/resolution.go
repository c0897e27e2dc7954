package domain

import "github.com/bwmarrin/snowflake"

type ResolutionStatus string

const (
	Resolved   ResolutionStatus = "resolved"
	Unresolved ResolutionStatus = "unresolved"
)

type ResolutionSource string

const (
	SourceExplicit ResolutionSource = "explicit"
	SourceArea     ResolutionSource = "area"
)

// MembershipRef carries the fields of a membership that drive kit resolution.
type MembershipRef struct {
	KitID  *snowflake.ID
	AreaID snowflake.ID
}

// Resolution is either Resolved with a kit or Unresolved.
type Resolution struct {
	Status ResolutionStatus `json:"status"`
	Source ResolutionSource `json:"source,omitempty"`
	Kit    *Kit             `json:"kit,omitempty"`
}

func (r Resolution) IsResolved() bool {
	return r.Status == Resolved && r.Kit != nil
}

func resolved(kit Kit, source ResolutionSource) Resolution {
	return Resolution{Status: Resolved, Source: source, Kit: &kit}
}

func unresolved() Resolution {
	return Resolution{Status: Unresolved}
}

// Index is a snapshot of kits used to resolve many memberships at once.
type Index struct {
	kits         map[snowflake.ID]Kit
	activeByArea map[snowflake.ID]snowflake.ID
}

// NewIndex builds an index; when an area has several active kits the lowest id wins.
func NewIndex(kits []Kit) *Index {
	idx := &Index{
		kits:         make(map[snowflake.ID]Kit, len(kits)),
		activeByArea: make(map[snowflake.ID]snowflake.ID),
	}
	for _, k := range kits {
		idx.kits[k.ID] = k
		if !k.Active {
			continue
		}
		if current, ok := idx.activeByArea[k.AreaID]; !ok || k.ID < current {
			idx.activeByArea[k.AreaID] = k.ID
		}
	}
	return idx
}

// Resolve applies the explicit kit first and the area's active kit second.
func (idx *Index) Resolve(ref MembershipRef) Resolution {
	if ref.KitID != nil && *ref.KitID != 0 {
		if kit, ok := idx.kits[*ref.KitID]; ok {
			return resolved(kit, SourceExplicit)
		}
		return unresolved()
	}
	if kitID, ok := idx.activeByArea[ref.AreaID]; ok {
		return resolved(idx.kits[kitID], SourceArea)
	}
	return unresolved()
}

// ActiveKitForArea returns the active kit id of an area.
func (idx *Index) ActiveKitForArea(areaID snowflake.ID) (snowflake.ID, bool) {
	id, ok := idx.activeByArea[areaID]
	return id, ok
}
