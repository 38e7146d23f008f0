package engine

// MaxSelectionKeys is the largest selection key set an engine accepts.
const MaxSelectionKeys = 10

// StartupOptions is the fixed configuration applied once an engine has been
// created.
type StartupOptions struct {
	// Layout is the initial keyboard layout identifier.
	Layout string

	// MaxSymbolLen is the longest buffer before leading symbols are
	// committed automatically.
	MaxSymbolLen int

	// AddPhraseDirection selects which side of the cursor phrase
	// candidates are taken from: 0 before the cursor, 1 after.
	AddPhraseDirection int

	// SpaceAsSelection makes Space open the candidate list.
	SpaceAsSelection bool

	// SelectionKeys pick a candidate from the displayed page.
	SelectionKeys []rune
}

// DefaultStartupOptions returns the configuration the bridge has always
// started engines with.
func DefaultStartupOptions() StartupOptions {
	return StartupOptions{
		Layout:             "KB_DEFAULT",
		MaxSymbolLen:       16,
		AddPhraseDirection: 1,
		SpaceAsSelection:   true,
		SelectionKeys:      []rune("1234567890"),
	}
}

// CandidatesPerPage derives the page size from the selection key count.
func (o StartupOptions) CandidatesPerPage() int {
	return min(len(o.SelectionKeys), MaxSelectionKeys)
}

// ApplyStartup configures a freshly created engine.
func ApplyStartup(e Engine, o StartupOptions) {
	layout := o.Layout
	if layout == "" {
		layout = "KB_DEFAULT"
	}
	e.SetLayout(e.LayoutCode(layout))
	e.SetMaxSymbolLen(o.MaxSymbolLen)
	e.SetAddPhraseDirection(o.AddPhraseDirection)
	e.SetSpaceAsSelection(o.SpaceAsSelection)

	keys := o.SelectionKeys
	if len(keys) > MaxSelectionKeys {
		keys = keys[:MaxSelectionKeys]
	}
	e.SetSelectionKeys(keys)
	e.SetCandidatesPerPage(o.CandidatesPerPage())
}
