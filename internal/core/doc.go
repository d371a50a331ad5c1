// Package core provides the pinvault operations.
//
// A Vault composes the key hierarchy, the PIN lockout state machine and the
// session auto-lock policy over a record store. Operations fall in three
// groups:
//   - Authentication: Init, UnlockWithPIN, UnlockWithBiometric, Lock, ChangePin
//   - Records: AddRecord, GetRecord, UpdateRecord, ListRecords, DeleteRecord,
//     Search, ByCategory, Expiring, ExportJSON, ExportCSV, ImportJSON
//   - Maintenance: FactoryWipe, Status, Compact
//
// Record operations pass through a session gate. Each call re-checks the
// auto-lock policy, loads the master key, derives the database key and
// zeroes both before returning. No key material is cached between calls.
//
// Bulk reads skip records that fail authentication and report their ids
// instead of aborting.
package core
