package audit

// Tamper lets tests corrupt an entry in place.
func (l *MemoryLog) Tamper(index int, action string) { l.tamper(index, action) }
