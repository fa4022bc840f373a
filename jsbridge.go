/*
Package jsbridge binds statically typed Go functions and types to a dynamically typed JavaScript host (goja).

Go values cross the boundary through Env.ToValue and Env.Marshal, host arguments are bound
to Go parameters through an Arguments cursor, exported functions resolve overloads in a single
trampoline, and Go types become JavaScript classes through ClassBuilder.
*/
package jsbridge
