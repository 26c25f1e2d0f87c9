// Package policy provides optional rules that restrict which system calls
// user processes may issue.
package policy
