package query

// PageConfig bounds paging. Zero maxima fall back to the defaults below.
type PageConfig struct {
	DefaultPage int
	DefaultSize int
	MaxPage     int
	MaxSize     int
}

// DefaultPageConfig returns {0, 20, 1000, 1000}.
func DefaultPageConfig() PageConfig {
	return PageConfig{DefaultPage: 0, DefaultSize: 20, MaxPage: 1000, MaxSize: 1000}
}

// PageDescriptor is what the storage layer pages and sorts by.
type PageDescriptor struct {
	Page int
	Size int
	Sort SortSpec
}

// Offset is the number of rows skipped.
func (p PageDescriptor) Offset() uint64 { return uint64(p.Page) * uint64(p.Size) }

// Limit is the page size as a row count.
func (p PageDescriptor) Limit() uint64 { return uint64(p.Size) }

// Query pairs a compiled filter with paging.
type Query struct {
	Filter Predicate
	Page   PageDescriptor
}

// PageBuilder resolves raw page/size/sort input against a PageConfig.
type PageBuilder struct {
	cfg PageConfig
}

func NewPageBuilder(cfg PageConfig) *PageBuilder {
	def := DefaultPageConfig()
	if cfg.DefaultPage < 0 {
		cfg.DefaultPage = def.DefaultPage
	}
	if cfg.DefaultSize <= 0 {
		cfg.DefaultSize = def.DefaultSize
	}
	if cfg.MaxPage <= 0 {
		cfg.MaxPage = def.MaxPage
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	return &PageBuilder{cfg: cfg}
}

// Config returns the effective configuration.
func (b *PageBuilder) Config() PageConfig { return b.cfg }

// Build never fails: a missing or negative page and a missing or non-positive
// size fall back to the defaults, then both are clamped to their maxima.
func (b *PageBuilder) Build(page, size *int, sortValues []string) PageDescriptor {
	s := b.cfg.DefaultSize
	if size != nil && *size > 0 {
		s = *size
	}
	if s > b.cfg.MaxSize {
		s = b.cfg.MaxSize
	}
	p := b.cfg.DefaultPage
	if page != nil && *page >= 0 {
		p = *page
	}
	if p > b.cfg.MaxPage {
		p = b.cfg.MaxPage
	}
	return PageDescriptor{Page: p, Size: s, Sort: ParseSort(sortValues)}
}
