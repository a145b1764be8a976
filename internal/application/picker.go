package application

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/bnema/primedictation-export/internal/domain"
	"github.com/bnema/primedictation-export/internal/logging"
	"github.com/bnema/primedictation-export/internal/ports"
)

var (
	ErrUnknownFolder = errors.New("folder is not in the current listing")
	ErrNoSubfolders  = errors.New("folder has no subfolders")
	ErrAtRoot        = errors.New("picker is already at the root")
)

// PickerLevel is one screen of the picker: the folder being listed, the
// folders loaded so far and the leaf checked at this level, if any.
type PickerLevel struct {
	Parent  domain.FolderNode
	Folders []domain.FolderNode
	Cursor  string
	Checked string
}

func (l PickerLevel) HasMore() bool {
	return l.Cursor != ""
}

func (l PickerLevel) find(id string) (domain.FolderNode, bool) {
	for _, folder := range l.Folders {
		if folder.ID == id {
			return folder, true
		}
	}
	return domain.FolderNode{}, false
}

// PickerFetch lists one folder page. It only reads what was captured when it
// was prepared, so it may run on any goroutine; the result reaches the
// picker through Apply.
type PickerFetch func(ctx context.Context) (PickerListing, error)

// PickerListing is a fetched page waiting to be applied.
type PickerListing struct {
	parent  domain.FolderNode
	folders []domain.FolderNode
	cursor  string
	extends *PickerLevel
}

// PickerHints are has-children answers for one level, applied with
// ApplyHints.
type PickerHints struct {
	level *PickerLevel
	hints map[string]bool
}

// Picker is the folder picker state machine. It starts at the provider
// root, descends with NavigateInto and ends with Confirm, which returns the
// checked leaf or the folder being listed.
//
// A Picker is not safe for concurrent use. Interactive callers run the
// network half (PickerFetch, the probe func) elsewhere and hand the results
// back with Apply and ApplyHints on the goroutine that owns the picker.
type Picker struct {
	profile   domain.ProviderProfile
	browser   ports.FolderBrowser
	cache     *SubfolderCache
	accountID string
	route     map[string]string
	log       logging.Logger

	levels    []*PickerLevel
	confirmed bool
}

// NewPicker builds a picker for accountID. current is the saved selection
// used to highlight the route to it.
func NewPicker(profile domain.ProviderProfile, browser ports.FolderBrowser, cache *SubfolderCache, accountID string, current domain.FolderSelection, log logging.Logger) *Picker {
	if log == nil {
		log = logging.NewNop()
	}
	return &Picker{
		profile:   profile,
		browser:   browser,
		cache:     cache,
		accountID: accountID,
		route:     domain.SelectedChain(current),
		log:       log.With("provider", string(profile.Provider)),
	}
}

// Start resets the has-children hints and loads the first root page.
func (p *Picker) Start(ctx context.Context) error {
	if p.cache != nil {
		p.cache.Reset()
	}
	p.levels = nil
	p.confirmed = false
	return p.run(ctx, p.fetcher(p.profile.RootNode(), "", nil))
}

func (p *Picker) AtRoot() bool {
	return len(p.levels) <= 1
}

func (p *Picker) Depth() int {
	return len(p.levels)
}

// Level returns a copy of the current screen.
func (p *Picker) Level() PickerLevel {
	if len(p.levels) == 0 {
		return PickerLevel{Parent: p.profile.RootNode()}
	}
	level := *p.current()
	level.Folders = append([]domain.FolderNode(nil), level.Folders...)
	return level
}

// SelectLeaf toggles the check mark on id. Checking the checked folder
// again clears it so the listed folder becomes the selection again.
func (p *Picker) SelectLeaf(id string) error {
	if err := p.ready(); err != nil {
		return err
	}
	level := p.current()
	if _, ok := level.find(id); !ok {
		return fmt.Errorf("select %q: %w", id, ErrUnknownFolder)
	}
	if level.Checked == id {
		level.Checked = ""
		return nil
	}
	level.Checked = id
	return nil
}

// NavigateInto opens a folder of the current listing.
func (p *Picker) NavigateInto(ctx context.Context, id string) error {
	fetch, err := p.PrepareOpen(id)
	if err != nil {
		return err
	}
	return p.run(ctx, fetch)
}

// PrepareOpen checks that id can be opened and returns the fetch for its
// listing.
func (p *Picker) PrepareOpen(id string) (PickerFetch, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	node, ok := p.current().find(id)
	if !ok {
		return nil, fmt.Errorf("open %q: %w", id, ErrUnknownFolder)
	}
	if node.HasChildren != nil && !*node.HasChildren {
		return nil, fmt.Errorf("open %q: %w", node.Name, ErrNoSubfolders)
	}
	return p.fetcher(node, "", nil), nil
}

// Back returns to the parent listing.
func (p *Picker) Back() error {
	if err := p.ready(); err != nil {
		return err
	}
	if p.AtRoot() {
		return ErrAtRoot
	}
	p.levels = p.levels[:len(p.levels)-1]
	return nil
}

// LoadMore appends the next page of the current listing.
func (p *Picker) LoadMore(ctx context.Context) error {
	fetch, err := p.PrepareMore()
	if err != nil || fetch == nil {
		return err
	}
	return p.run(ctx, fetch)
}

// PrepareMore returns the fetch for the next page of the current listing,
// or nil when it is complete.
func (p *Picker) PrepareMore() (PickerFetch, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	level := p.current()
	if !level.HasMore() {
		return nil, nil
	}
	return p.fetcher(level.Parent, level.Cursor, level), nil
}

// Apply adds a fetched page: a new level for an opened folder, or more rows
// for the level it extends. A page for a level that is no longer shown is
// dropped.
func (p *Picker) Apply(ctx context.Context, listing PickerListing) error {
	if p.confirmed {
		return domain.ErrPickerConfirmed
	}
	if listing.extends != nil {
		if len(p.levels) == 0 || p.current() != listing.extends {
			p.log.Debug(ctx, "dropped page of a closed listing", "parent", listing.parent.ID)
			return nil
		}
		listing.extends.Folders = append(listing.extends.Folders, listing.folders...)
		listing.extends.Cursor = listing.cursor
		return nil
	}

	p.levels = append(p.levels, &PickerLevel{
		Parent:  listing.parent,
		Folders: listing.folders,
		Cursor:  listing.cursor,
	})
	p.log.Debug(ctx, "listed folders", "parent", listing.parent.ID, "count", len(listing.folders), "more", listing.cursor != "")
	return nil
}

// Confirm ends the session with the checked leaf, or the listed folder when
// nothing is checked.
func (p *Picker) Confirm() (domain.FolderSelection, error) {
	if err := p.ready(); err != nil {
		return domain.FolderSelection{}, err
	}
	level := p.current()
	p.confirmed = true

	if level.Checked != "" {
		if node, ok := level.find(level.Checked); ok {
			return node.Selection(p.accountID), nil
		}
	}
	if p.AtRoot() {
		return p.profile.RootSelection(p.accountID), nil
	}
	return level.Parent.Selection(p.accountID), nil
}

// OnSelectedRoute reports whether node is the saved selection or one of its
// ancestors.
func (p *Picker) OnSelectedRoute(node domain.FolderNode) bool {
	if len(p.route) == 0 || node.Path == "" {
		return false
	}
	clean := strings.ToLower(path.Clean("/" + strings.TrimPrefix(node.Path, "/")))
	parent := path.Dir(clean)
	if parent == "/" {
		parent = ""
	}
	return p.route[parent] == clean
}

// ShowsDisclosure reports whether the row should offer to open node. An
// unknown answer is optimistic.
func ShowsDisclosure(node domain.FolderNode) bool {
	return node.HasChildren == nil || *node.HasChildren
}

// ProbeVisible resolves has-children for the rows of the current listing
// that are still unknown and updates them in place.
func (p *Picker) ProbeVisible(ctx context.Context) {
	if probe := p.PrepareProbe(); probe != nil {
		p.ApplyHints(probe(ctx))
	}
}

// PrepareProbe returns a func answering has-children for the unknown rows
// of the current listing, or nil when there is nothing to ask. Like a
// PickerFetch it may run on any goroutine.
func (p *Picker) PrepareProbe() func(context.Context) PickerHints {
	if p.cache == nil || len(p.levels) == 0 {
		return nil
	}
	level := p.current()

	var refs []domain.FolderRef
	for _, folder := range level.Folders {
		if folder.HasChildren == nil {
			refs = append(refs, folder.Ref())
		}
	}
	if len(refs) == 0 {
		return nil
	}

	cache := p.cache
	return func(ctx context.Context) PickerHints {
		return PickerHints{level: level, hints: cache.ProbeMany(ctx, refs)}
	}
}

// ApplyHints fills unknown rows of the level the hints were asked for, even
// if the user has since opened a subfolder of it.
func (p *Picker) ApplyHints(h PickerHints) {
	for _, level := range p.levels {
		if level != h.level {
			continue
		}
		for i := range level.Folders {
			if level.Folders[i].HasChildren != nil {
				continue
			}
			if value, ok := h.hints[level.Folders[i].ID]; ok {
				level.Folders[i].HasChildren = domain.BoolPtr(value)
			}
		}
		return
	}
}

func (p *Picker) run(ctx context.Context, fetch PickerFetch) error {
	listing, err := fetch(ctx)
	if err != nil {
		return err
	}
	return p.Apply(ctx, listing)
}

// fetcher captures what a listing call needs so it never reads picker state
// while it runs.
func (p *Picker) fetcher(parent domain.FolderNode, cursor string, extends *PickerLevel) PickerFetch {
	browser, cache := p.browser, p.cache
	return func(ctx context.Context) (PickerListing, error) {
		page, err := browser.ListFolders(ctx, parent.Ref(), cursor)
		if err != nil {
			if extends != nil {
				return PickerListing{}, fmt.Errorf("list more folders of %q: %w", parent.Name, err)
			}
			return PickerListing{}, fmt.Errorf("list folders of %q: %w", parent.Name, err)
		}

		folders := withHints(cache, page.Folders)
		if extends == nil && cache != nil && (len(folders) > 0 || !page.HasMore()) {
			cache.Store(parent.Ref(), len(folders) > 0)
		}
		return PickerListing{parent: parent, folders: folders, cursor: page.NextCursor, extends: extends}, nil
	}
}

// withHints fills unknown has-children values from the cache and records
// the ones the provider already answered.
func withHints(cache *SubfolderCache, folders []domain.FolderNode) []domain.FolderNode {
	if cache == nil {
		return folders
	}
	for i := range folders {
		if folders[i].HasChildren != nil {
			cache.Store(folders[i].Ref(), *folders[i].HasChildren)
			continue
		}
		if value, ok := cache.Lookup(folders[i].Ref()); ok {
			folders[i].HasChildren = domain.BoolPtr(value)
		}
	}
	return folders
}

func (p *Picker) current() *PickerLevel {
	return p.levels[len(p.levels)-1]
}

func (p *Picker) ready() error {
	if p.confirmed {
		return domain.ErrPickerConfirmed
	}
	if len(p.levels) == 0 {
		return errors.New("folder picker not started")
	}
	return nil
}
