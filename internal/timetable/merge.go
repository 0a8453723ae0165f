package timetable

import (
	"sort"
	"strings"
)

// Merge groups parsed slots that render one logical class as several DOM
// fragments: same day, case-insensitively equal course name, and time
// ranges that overlap or sit within one snapping unit of each other. The
// merged entry spans the union of the group's ranges and keeps the most
// complete room/professor pair; on conflict the slot with the earliest
// start wins.
//
// The second return value counts entries dropped by post-merge
// validation.
func Merge(slots []ParsedSlot) ([]ScheduleEntry, int) {
	groups := make(map[string][]ParsedSlot)
	var order []string
	for _, s := range slots {
		key := mergeKey(s)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], s)
	}

	var entries []ScheduleEntry
	anomalies := 0
	for _, key := range order {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool { return group[i].StartMinute < group[j].StartMinute })

		cur := group[0]
		for _, next := range group[1:] {
			if next.StartMinute <= cur.EndMinute+SnapMinutes {
				if next.EndMinute > cur.EndMinute {
					cur.EndMinute = next.EndMinute
				}
				// Earliest start already holds cur's fields; fill only
				// what it left absent.
				if cur.Fields.Room == "" {
					cur.Fields.Room = next.Fields.Room
				}
				if cur.Fields.Professor == "" {
					cur.Fields.Professor = next.Fields.Professor
				}
				continue
			}
			if e, ok := finalize(cur); ok {
				entries = append(entries, e)
			} else {
				anomalies++
			}
			cur = next
		}
		if e, ok := finalize(cur); ok {
			entries = append(entries, e)
		} else {
			anomalies++
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := dayIndexOf(entries[i].Day), dayIndexOf(entries[j].Day)
		if di != dj {
			return di < dj
		}
		return entries[i].StartTime < entries[j].StartTime
	})
	return entries, anomalies
}

func mergeKey(s ParsedSlot) string {
	return strings.ToLower(strings.TrimSpace(s.Fields.CourseName)) + "\x00" + string(rune('0'+s.DayIndex))
}

// finalize validates the ScheduleEntry invariants: ordered times inside
// one day, a canonical day, and a non-empty course name.
func finalize(s ParsedSlot) (ScheduleEntry, bool) {
	if s.StartMinute < 0 || s.EndMinute > fullDayMinutes || s.StartMinute >= s.EndMinute {
		return ScheduleEntry{}, false
	}
	day := DayName(s.DayIndex)
	if day == "" {
		return ScheduleEntry{}, false
	}
	course := strings.TrimSpace(s.Fields.CourseName)
	if course == "" {
		return ScheduleEntry{}, false
	}
	return ScheduleEntry{
		Day:        day,
		StartTime:  Clock(s.StartMinute),
		EndTime:    Clock(s.EndMinute),
		CourseName: course,
		Room:       strings.TrimSpace(s.Fields.Room),
		Professor:  strings.TrimSpace(s.Fields.Professor),
	}, true
}

func dayIndexOf(name string) int {
	for i, d := range dayNames {
		if d == name {
			return i
		}
	}
	return DayColumnCount
}
