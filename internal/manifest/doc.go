// Package manifest reconciles bulk delivery manifests against a bowl.Store.
//
// A manifest is JSON of no fixed schema: a flat array of bowl-bearing
// objects, a company → box → dish → bowlCodes tree, or any shallower form.
// Import happens in three steps:
//
//	Parse     JSON → ordered node tree (object key order kept)
//	Flatten   depth-first walk emitting (code, metadata) in document order
//	Apply     allow-list, first-occurrence dedupe, Store.Reconcile per code
//
// Metadata (company, customer, dish) is accumulated per path. Each node
// derives a new context from its parent's; siblings never see each other's
// values.
//
// Applying the same manifest twice yields created=0 on the second run.
package manifest
