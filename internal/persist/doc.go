package persist

// Package persist provides the durable snapshot layer for the schedule store.
//
// It supports:
//   - Whole-store snapshot writes (file or sqlite driver)
//   - Restore-on-start with strict version checking
//   - A debounced flusher so rapid mutations coalesce into one write
