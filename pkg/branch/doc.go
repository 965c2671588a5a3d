// Package branch is the registry of branch metadata: name, id,
// timestamps, and the last commit version that touched each branch.
// Branch contents live in the multi-version store, not here.
package branch
