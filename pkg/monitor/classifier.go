package monitor

import "github.com/saasguard/o365-monitor/pkg/graph"

// Classify maps one remote change record to an event type. The remote API
// carries no explicit event kind; equality of the created and last-modified
// timestamps is the only signal separating a first appearance from an edit.
// Pure function, no I/O.
func Classify(item *graph.DriveItem) EventType {
	if item.IsDeleted() {
		return EventDelete
	}
	if item.IsFolder() {
		return EventIgnored
	}

	created, createdOK := item.CreatedTime()
	modified, modifiedOK := item.ModifiedTime()
	if createdOK && modifiedOK {
		if created.Equal(modified) {
			return EventUpload
		}
		return EventChange
	}

	// Neither timestamp present. Surfaced as unknown so the caller can
	// decide whether to log-and-skip or fail the batch.
	return EventUnknown
}
