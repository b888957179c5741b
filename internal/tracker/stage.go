package tracker

// Stage is a state in the per-site run machine.
type Stage string

// Run stages in the order a successful run visits them.
const (
	StageIdle               Stage = "idle"
	StageLocked             Stage = "locked"
	StageProvisioning       Stage = "provisioning"
	StageScanning           Stage = "scanning"
	StageScanSucceeded      Stage = "scan_succeeded"
	StageScanFailed         Stage = "scan_failed"
	StageCanonicalizing     Stage = "canonicalizing"
	StageCanonicalized      Stage = "canonicalized"
	StageCanonicalizeFailed Stage = "canonicalize_failed"
	StagePublishing         Stage = "publishing"
	StagePublished          Stage = "published"
	StagePublishFailed      Stage = "publish_failed"
	StageUnlocked           Stage = "unlocked"
)

// Terminal reports whether the stage ends the pipeline before Unlocked.
func (s Stage) Terminal() bool {
	switch s {
	case StageScanFailed, StageCanonicalizeFailed, StagePublishFailed, StagePublished:
		return true
	default:
		return false
	}
}

// Failed reports whether the stage is a failure state.
func (s Stage) Failed() bool {
	switch s {
	case StageScanFailed, StageCanonicalizeFailed, StagePublishFailed:
		return true
	default:
		return false
	}
}
