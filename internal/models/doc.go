// Package models defines the core domain records for splitledger.
//
// # Records
//
//   - Group: a set of members who share expenses
//   - Expense: one spend event with a payer and participant shares
//   - ParticipantShare: one member's obligation within an expense
//   - Settlement: a direct payment between two members outside any expense
//
// Members are identified by the user ID issued by the external auth platform.
// The service never stores profiles or credentials, only those IDs.
//
// # Design Principles
//
//  1. Records are plain data: validation lives at the service boundary and
//     balance math lives in the calculator package
//  2. Relationships use ID strings instead of pointers
//  3. Timestamps are Unix seconds
package models
