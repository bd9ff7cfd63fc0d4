package enum

// EvidenceState tracks the archival lifecycle of a lab's evidence directory.
type EvidenceState string

const (
	EvidenceStateCollecting EvidenceState = "collecting"
	EvidenceStateReady      EvidenceState = "ready"
	EvidenceStatePartial    EvidenceState = "partial"
	EvidenceStateUnavailable EvidenceState = "unavailable"
)

// Values returns all possible evidence state values.
func (EvidenceState) Values() []string {
	return []string{
		string(EvidenceStateCollecting),
		string(EvidenceStateReady),
		string(EvidenceStatePartial),
		string(EvidenceStateUnavailable),
	}
}
