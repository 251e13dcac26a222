package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func errorHandling(m dsl.Matcher) {
	m.Match(`errors.New(fmt.Sprintf($*args))`).
		Report(`errors.New(fmt.Sprintf()) flattens the chain; use fmt.Errorf`).
		Suggest(`fmt.Errorf($args)`)

	// Error text comparison breaks once a message changes; identity survives wrapping.
	m.Match(`$x.Error() == $y.Error()`).
		Report(`compare errors with errors.Is, not their text`)

	m.Match(`fmt.Errorf($msg)`).
		Where(!m["msg"].Text.Matches(`.*%.*`)).
		Report(`fmt.Errorf without verbs; use errors.New`).
		Suggest(`errors.New($msg)`)
}

func timeHelpers(m dsl.Matcher) {
	m.Match(`time.Now().Sub($x)`).
		Report(`time.Now().Sub can be time.Since`).
		Suggest(`time.Since($x)`)

	m.Match(`time.Now().Add(-$d)`).
		Report(`consider time.Since arithmetic instead of negative Add offsets`)
}

func dispatchHygiene(m dsl.Matcher) {
	// Dispatch reports failures inside the result; dropping it hides them.
	m.Match(`$reg.Dispatch($ctx, $call); $*_`).
		Report(`dispatch result dropped; check res.Error`)

	m.Match(`$reg.DispatchAll($ctx, $calls); $*_`).
		Report(`batch results dropped; each item carries its own error`)
}
