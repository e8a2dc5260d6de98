package coordinator

import (
	"context"
	"fmt"

	"Musync/model"
)

// RebuildTagMapping picks, per field, the first prioritized source whose tag has a value
// for that field, falling back to the primary tag's source. The mapping identity is kept.
func RebuildTagMapping(mapping *model.TagMapping, priority model.PriorityList, tags []*model.Tag) (*model.TagMapping, error) {
	bySource := make(map[string]*model.Tag, len(tags))
	var primary *model.Tag
	for _, t := range tags {
		bySource[t.Source] = t
		if t.IsPrimary {
			primary = t
		}
	}
	if primary == nil {
		return nil, fmt.Errorf("%w: file %s", ErrPrimaryTagMissing, mapping.FileID)
	}

	rebuilt := *mapping
	for _, field := range model.Fields {
		selected := primary.Source
		for _, src := range priority[field] {
			if t, ok := bySource[src]; ok && t.HasValue(field) {
				selected = src
				break
			}
		}
		rebuilt.Set(field, selected)
	}
	rebuilt.AutoMerged = true
	return &rebuilt, nil
}

// priorityFor returns the user's priority, or the registry default when the user has none.
func (c *FileCoordinator) priorityFor(ctx context.Context, userID string, fallback func() (model.PriorityList, error)) (model.PriorityList, error) {
	p, err := c.tags.GetTagMappingPriority(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get priority for user %s: %w", userID, err)
	}
	if !p.Empty() {
		return p, nil
	}
	return fallback()
}

func (c *FileCoordinator) defaultPriority(ctx context.Context) (model.PriorityList, error) {
	sources, err := c.sources.GetSourcesWithParsingPermission(ctx)
	if err != nil {
		return nil, fmt.Errorf("list parsing sources: %w", err)
	}
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.ID)
	}
	return model.UniformPriority(ids), nil
}
