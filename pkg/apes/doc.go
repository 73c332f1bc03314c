/*
Package apes carries configuration bodies as a fixed value variant (null,
boolean, number, text, list, ordered map) with two serializations: a
canonical JSON codec and a write-only annotated XML form. A media-type
registry negotiates between them for the HTTP shell.
*/
package apes
