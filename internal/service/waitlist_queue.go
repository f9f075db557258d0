package service

import (
	"sort"
	"time"

	"github.com/noah-isme/course-admission-api/internal/models"
)

// activeQueue returns the active entries ordered by position.
func activeQueue(entries []models.WaitlistEntry) []models.WaitlistEntry {
	queue := make([]models.WaitlistEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsActive {
			queue = append(queue, e)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Position < queue[j].Position })
	return queue
}

func findActive(entries []models.WaitlistEntry, studentID string) int {
	for i := range entries {
		if entries[i].IsActive && entries[i].StudentID == studentID {
			return i
		}
	}
	return -1
}

func nextPosition(entries []models.WaitlistEntry) int {
	highest := 0
	for _, e := range entries {
		if e.IsActive && e.Position > highest {
			highest = e.Position
		}
	}
	return highest + 1
}

// deactivate retires entries[idx] and renumbers the remaining queue. It returns the retired entry.
func deactivate(entries []models.WaitlistEntry, idx int, reason models.WaitlistRemovalReason, at time.Time) models.WaitlistEntry {
	removedAt := at
	r := reason
	entries[idx].IsActive = false
	entries[idx].RemovedAt = &removedAt
	entries[idx].RemovalReason = &r
	renumber(entries)
	return entries[idx]
}

// renumber reassigns 1..N to active entries by ascending JoinedAt; ties keep insertion order.
// Inactive entries carry position 0.
func renumber(entries []models.WaitlistEntry) {
	active := make([]*models.WaitlistEntry, 0, len(entries))
	for i := range entries {
		if entries[i].IsActive {
			active = append(active, &entries[i])
		} else {
			entries[i].Position = 0
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].JoinedAt.Before(active[j].JoinedAt) })
	for i, e := range active {
		e.Position = i + 1
	}
}
