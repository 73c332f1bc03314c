/*
Package acml defines the configuration data family (documents, templates,
patches, validation reports) and the engine that ties them together.

A template is a tree of typed fields mirroring the apes value variants.
Validation walks a document body against that tree: each field first runs
its condition predicates, sandboxed with a per-condition timeout, then its
type constraint, then recurses into list elements and map entries. The
result is a report; a document is sound iff its report has no violations.
Violations are results, not errors.

Patches address a location in a body with a slash-delimited path, where
digit segments index lists and identifier segments key maps, and replace
the value there, coercing intermediate containers into existence.
*/
package acml
