/*
Package store composes the directory and the validator into the
configuration store service.

Documents live under the ".d" bucket and templates under ".t", both as
canonical JSON. Every mutation runs in a single directory write
transaction and is gated by validation: adds and patches that leave any
document unsound return their reports and write nothing.
*/
package store
