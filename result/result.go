// Package result implements the fixed error taxonomy of spec.md §7: a
// result code, a {Code, Suggestion, FileName, Line} record (there is no
// separate description field; the Suggestion text is the only message), and a
// per-Core Reporter replacing the original toolkit's global error-handler
// singleton (spec.md §9 "Global singletons").
//
// The teacher repo wraps errors with fmt.Errorf("...: %w", err) and defines
// small sentinel errors per package; this package keeps that shape but adds
// the taxonomy and last-result/first-error tracking the spec requires, since
// the teacher has no equivalent (it never needed one).
package result

import (
	"fmt"
	"sync"
)

// Code is the fixed result taxonomy from spec.md §7, mirroring
// 3dti_Toolkit/Common/ErrorHandler.h's TResultID.
type Code int

const (
	OK Code = iota
	Unknown
	NotSet
	BadAlloc
	NullPointer
	DivByZero
	CaseNotDefined
	Physics
	InvalidParam
	OutOfRange
	BadSize
	NotInitialized
	SystemCall
	NotAllowed
	NotImplemented
	File
	Exception
	Warning
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Unknown:
		return "UNKNOWN"
	case NotSet:
		return "NOTSET"
	case BadAlloc:
		return "BADALLOC"
	case NullPointer:
		return "NULLPOINTER"
	case DivByZero:
		return "DIVBYZERO"
	case CaseNotDefined:
		return "CASENOTDEFINED"
	case Physics:
		return "PHYSICS"
	case InvalidParam:
		return "INVALID_PARAM"
	case OutOfRange:
		return "OUTOFRANGE"
	case BadSize:
		return "BADSIZE"
	case NotInitialized:
		return "NOTINITIALIZED"
	case SystemCall:
		return "SYSTEMCALL"
	case NotAllowed:
		return "NOTALLOWED"
	case NotImplemented:
		return "NOTIMPLEMENTED"
	case File:
		return "FILE"
	case Exception:
		return "EXCEPTION"
	case Warning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

// Result is one reported outcome, matching the original TResultStruct.
type Result struct {
	Code       Code
	Suggestion string
	FileName   string
	Line       int
}

func (r Result) Error() string {
	return fmt.Sprintf("%s: %s (%s:%d)", r.Code, r.Suggestion, r.FileName, r.Line)
}

// Verbosity controls which result classes are logged and where.
type Verbosity int

const (
	VerbositySilent Verbosity = iota
	VerbosityErrorsAndWarnings
	VerbosityOnlyErrors
	VerbosityAll
)

// AssertMode selects behaviour on a failed precondition (§7).
type AssertMode int

const (
	AssertEmpty    AssertMode = iota // ignore, result reporting disabled
	AssertContinue                   // report but never terminate
	AssertAbort                      // abort on a failed ASSERT
	AssertParanoid                   // abort on ANY non-OK result
)

// Sink receives logged results; file/stream/Android-log sinks all implement
// this. nil is valid and discards everything.
type Sink interface {
	Log(r Result)
}

// Reporter is the per-Core context object that replaces the original
// singleton error handler (spec.md §9). It is safe for concurrent use from
// the control thread; the real-time callback should only ever call Report
// with Code==OK-adjacent paths it does not expect to take (§7: "avoid
// writing result records on the hot successful paths").
type Reporter struct {
	mu          sync.Mutex
	verbosity   Verbosity
	assertMode  AssertMode
	sink        Sink
	last        Result
	firstError  Result
	hasFirstErr bool
}

// NewReporter creates a Reporter with the toolkit's documented defaults:
// VerbosityOnlyErrors and AssertAbort (see ErrorHandler.h ResetErrors).
func NewReporter() *Reporter {
	return &Reporter{
		verbosity:  VerbosityOnlyErrors,
		assertMode: AssertAbort,
		last:       Result{Code: OK},
	}
}

// SetVerbosity sets which classes of result get logged.
func (r *Reporter) SetVerbosity(v Verbosity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verbosity = v
}

// SetAssertMode sets the behaviour on failed preconditions.
func (r *Reporter) SetAssertMode(m AssertMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertMode = m
}

// SetSink installs the logging destination (file, stream, Android log, or nil).
func (r *Reporter) SetSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = s
}

// SetResult records a result, mirroring CErrorHandler::SetResult.
func (r *Reporter) SetResult(code Code, suggestion, fileName string, line int) Result {
	res := Result{Code: code, Suggestion: suggestion, FileName: fileName, Line: line}

	r.mu.Lock()
	r.last = res
	if code != OK && code != Warning && !r.hasFirstErr {
		r.firstError = res
		r.hasFirstErr = true
	}
	shouldLog := r.shouldLog(code)
	sink := r.sink
	mode := r.assertMode
	r.mu.Unlock()

	if shouldLog && sink != nil {
		sink.Log(res)
	}
	if mode == AssertParanoid && code != OK {
		panic(res)
	}
	return res
}

func (r *Reporter) shouldLog(code Code) bool {
	switch r.verbosity {
	case VerbositySilent:
		return false
	case VerbosityErrorsAndWarnings:
		return code != OK
	case VerbosityOnlyErrors:
		return code != OK && code != Warning
	case VerbosityAll:
		return true
	default:
		return false
	}
}

// Assert mirrors CErrorHandler::AssertTest: reports OK with suggestionOK if
// condition holds, otherwise reports errorID with suggestionError and, in
// AssertAbort/AssertParanoid mode, panics after logging.
func (r *Reporter) Assert(condition bool, errorID Code, suggestionError, suggestionOK, fileName string, line int) Result {
	if condition {
		return r.SetResult(OK, suggestionOK, fileName, line)
	}
	res := r.SetResult(errorID, suggestionError, fileName, line)

	r.mu.Lock()
	mode := r.assertMode
	r.mu.Unlock()

	if mode == AssertAbort || mode == AssertParanoid {
		panic(res)
	}
	return res
}

// LastResult returns the most recently reported result.
func (r *Reporter) LastResult() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// FirstError returns the first non-OK, non-Warning result since the last
// Reset, and whether one has occurred.
func (r *Reporter) FirstError() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstError, r.hasFirstErr
}

// Reset clears last-result/first-error tracking and restores the documented
// defaults (VerbosityOnlyErrors, AssertAbort), matching ResetErrors().
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = Result{Code: OK}
	r.hasFirstErr = false
	r.firstError = Result{}
	r.verbosity = VerbosityOnlyErrors
	r.assertMode = AssertAbort
}
