// Package reduce implements the Reducer (spec §4.7): combining
// {index -> ChunkResult} into a single aggregate, via a deduplicating
// merge for entity-extraction-style outputs and a hierarchical batched
// reduce for free-form summaries.
package reduce

import "strings"

// Entity is one deduplicated, provenance-tracked extraction result.
type Entity struct {
	// Display is the first-seen original form, preserved for presentation.
	Display string
	// Attrs holds scalar attributes (e.g. "role"), first-non-empty wins on merge.
	Attrs map[string]string
	// Chunks is the set of chunk indexes that mentioned this entity.
	Chunks []int
}

// Relationship is one deduplicated relationship between two entities.
type Relationship struct {
	Person1  string
	Person2  string
	Type     string
	Evidence []string
	Chunks   []int
}

// RawEntity is the per-chunk extraction input to DedupEntities, carrying
// its originating chunk index for provenance.
type RawEntity struct {
	Name       string
	Attrs      map[string]string
	ChunkIndex int
}

// RawRelationship is the per-chunk extraction input to DedupRelationships.
type RawRelationship struct {
	Person1    string
	Person2    string
	Type       string
	Evidence   string
	ChunkIndex int
}

// normalize implements spec §4.7's normalization: "lowercase + trim".
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DedupEntities implements the deduplicating merge of spec §4.7(a) for one
// entity class (people, companies, concepts, ...). Input order determines
// first-seen display form and tie-breaking; callers must supply entities
// ordered by ascending chunk index for determinism (spec §8: "dedup
// tie-breaking by lowest index").
func DedupEntities(raw []RawEntity) []Entity {
	order := make([]string, 0, len(raw))
	byKey := make(map[string]*Entity, len(raw))

	for _, r := range raw {
		key := normalize(r.Name)

		e, ok := byKey[key]
		if !ok {
			e = &Entity{Display: r.Name, Attrs: map[string]string{}, Chunks: nil}
			byKey[key] = e
			order = append(order, key)
		}

		mergeAttrs(e.Attrs, r.Attrs)
		e.Chunks = addChunkIndex(e.Chunks, r.ChunkIndex)
	}

	out := make([]Entity, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}

	return out
}

// mergeAttrs applies "first-non-empty wins" per scalar attribute.
func mergeAttrs(dst, src map[string]string) {
	for k, v := range src {
		if v == "" {
			continue
		}

		if existing, ok := dst[k]; ok && existing != "" {
			continue
		}

		dst[k] = v
	}
}

func addChunkIndex(chunks []int, idx int) []int {
	for _, existing := range chunks {
		if existing == idx {
			return chunks
		}
	}

	return append(chunks, idx)
}

// relationshipKey implements spec §4.7's relationship key:
// (person1_norm, person2_norm, relationship_type).
func relationshipKey(r RawRelationship) string {
	return normalize(r.Person1) + "\x00" + normalize(r.Person2) + "\x00" + normalize(r.Type)
}

// DedupRelationships implements the relationship-specific merge rule:
// evidence strings are kept as a list, de-duplicated substring-wise (a
// candidate contained in an existing entry is dropped; one that contains
// an existing entry replaces it).
func DedupRelationships(raw []RawRelationship) []Relationship {
	order := make([]string, 0, len(raw))
	byKey := make(map[string]*Relationship, len(raw))

	for _, r := range raw {
		key := relationshipKey(r)

		rel, ok := byKey[key]
		if !ok {
			rel = &Relationship{Person1: r.Person1, Person2: r.Person2, Type: r.Type}
			byKey[key] = rel
			order = append(order, key)
		}

		rel.Evidence = addEvidence(rel.Evidence, r.Evidence)
		rel.Chunks = addChunkIndex(rel.Chunks, r.ChunkIndex)
	}

	out := make([]Relationship, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}

	return out
}

func addEvidence(evidence []string, candidate string) []string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return evidence
	}

	for _, existing := range evidence {
		if strings.Contains(existing, candidate) || strings.Contains(candidate, existing) {
			if len(candidate) > len(existing) {
				// Candidate is a superset; replace in place to keep the
				// longer (more complete) evidence string.
				for i, e := range evidence {
					if e == existing {
						evidence[i] = candidate

						return evidence
					}
				}
			}

			return evidence
		}
	}

	return append(evidence, candidate)
}
