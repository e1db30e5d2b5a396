package bill

import "fmt"

// EditSession is the draft for revising one item's magnitude.
type EditSession struct {
	ItemID string `json:"item_id"`
	Draft  string `json:"draft"`
}

// State is everything the interactive session holds. It is a value: Reduce
// returns a new State and the previous one stays valid.
type State struct {
	Buffer   Buffer
	Ledger   Ledger
	Edit     *EditSession
	Scanning bool
	Notice   string
}

// Action is one user input or async completion.
type Action interface {
	action()
}

type (
	AppendToken struct{ Token string }
	DeleteLast  struct{}
	ClearInput  struct{}
	CommitEntry struct{ Deduction bool }
	RemoveItem  struct{ ID string }
	StartEdit   struct{ ID string }
	UpdateDraft struct{ Draft string }
	CommitEdit  struct{ Value string }
	CancelEdit  struct{}
	ClearAll    struct{ Confirmed bool }
	ScanStarted struct{}
	// ScanFinished carries a completed import. Entries is only set when the
	// scan succeeded; Notice is the message to show either way.
	ScanFinished struct {
		Entries []ImportEntry
		Notice  string
	}
)

func (AppendToken) action()  {}
func (DeleteLast) action()   {}
func (ClearInput) action()   {}
func (CommitEntry) action()  {}
func (RemoveItem) action()   {}
func (StartEdit) action()    {}
func (UpdateDraft) action()  {}
func (CommitEdit) action()   {}
func (CancelEdit) action()   {}
func (ClearAll) action()     {}
func (ScanStarted) action()  {}
func (ScanFinished) action() {}

// Reduce applies a to s. While a scan is in flight only ScanFinished is
// accepted. Validation failures return the unchanged state plus an error
// for the caller to show.
func Reduce(s State, a Action, st Stamper) (State, error) {
	if s.Scanning {
		if _, ok := a.(ScanFinished); !ok {
			return s, ErrScanInProgress
		}
	}

	switch a := a.(type) {
	case AppendToken:
		s.Buffer = s.Buffer.Append(a.Token)

	case DeleteLast:
		s.Buffer = s.Buffer.DeleteLast()

	case ClearInput:
		s.Buffer = s.Buffer.Clear()

	case CommitEntry:
		s.Ledger, s.Buffer, _ = s.Ledger.Commit(s.Buffer, a.Deduction, st)

	case RemoveItem:
		s.Ledger = s.Ledger.Remove(a.ID)
		if s.Edit != nil && s.Edit.ItemID == a.ID {
			s.Edit = nil
		}

	case StartEdit:
		if session, ok := s.Ledger.StartEdit(a.ID); ok {
			s.Edit = &session
		}

	case UpdateDraft:
		if s.Edit != nil {
			s.Edit = &EditSession{ItemID: s.Edit.ItemID, Draft: a.Draft}
		}

	case CommitEdit:
		if s.Edit == nil {
			return s, nil
		}
		next, _, err := s.Ledger.CommitEdit(*s.Edit, a.Value)
		if err != nil {
			s.Edit = &EditSession{ItemID: s.Edit.ItemID, Draft: a.Value}
			return s, err
		}
		s.Ledger = next
		s.Edit = nil

	case CancelEdit:
		s.Edit = nil

	case ClearAll:
		if !a.Confirmed {
			return s, ErrConfirmationRequired
		}
		s.Ledger = Ledger{}
		s.Buffer = s.Buffer.Clear()
		s.Edit = nil
		s.Notice = ""

	case ScanStarted:
		s.Scanning = true
		s.Notice = ""

	case ScanFinished:
		if !s.Scanning {
			return s, nil
		}
		s.Scanning = false
		s.Notice = a.Notice
		if len(a.Entries) > 0 {
			s.Ledger, _ = s.Ledger.Import(a.Entries, st)
		}

	default:
		return s, fmt.Errorf("unknown action %T", a)
	}

	return s, nil
}
