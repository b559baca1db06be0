// Package gitops commits generated articles to the digital garden
// repository and publishes them.
//
// Every git and gh invocation is queued onto one worker goroutine, so
// concurrent callers never race on the index or the working tree. Each
// queued command carries its own timeout: network operations (pull, push,
// remote deletes and pull requests) get the push timeout, everything else
// the command timeout.
//
// Deploy follows the branch-per-batch flow: check out the main branch,
// pull, branch off with a timestamped name, write and stage the articles,
// commit, then optionally push, open a pull request and report the GitHub
// Pages URL. Only a failed commit fails a deployment; the remaining steps
// record their errors and continue.
package gitops
