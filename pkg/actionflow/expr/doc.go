/*
Package expr compiles boolean conditions over call payloads.

# Overview

Channels declared in a manifest cannot carry Go functions, so their
conditions are written as small expressions. An expression is compiled once
when the channel is registered and evaluated for every call.

	p, err := expr.Compile("user.age >= 18 and status == 'active'")
	ok, err := p.Eval(map[string]any{
	    "status": "active",
	    "user":   map[string]any{"age": 21},
	})

# Syntax

	<or>      := <and> ('or' | '||') <and> ...
	<and>     := <unary> ('and' | '&&') <unary> ...
	<unary>   := ('not' | '!') <unary> | <cmp>
	<cmp>     := <primary> [<op> <primary>]
	<op>      := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains' | custom
	<primary> := '(' <or> ')' | literal | path

Literals are quoted strings ('a' or "a"), numbers, true, false and null.

# Paths

A path is a dot-separated list of names. The first name "payload" (or "$")
refers to the whole payload; any other first name is looked up in the
payload itself. Maps with string keys are indexed by key and structs by
field name or json tag. A missing name resolves to null.

# Comparison

== and != compare the formatted values, so 5 == '5'. Ordering operators
compare numerically. contains tests for a substring of the formatted left
value.

# Truthiness

A bare value is true unless it is null, false, an empty string or zero.
*/
package expr
