package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/ast-index/internal/model"
)

// Test Plan for the language scanners:
// - Kotlin: package-qualified names, supertypes (extends vs implements),
//   call edges sourced from the enclosing function, visibility,
//   annotations, DI edges, companion objects, locals dropped
// - Swift: class/protocol/struct/extension inheritance rules, property
//   annotations, visibility defaults
// - Objective-C: interfaces with protocols, categories, implementation
//   without interface, message sends as calls
// - Perl: packages with "::" names, use parent / @ISA parents, constants,
//   our variables, private subs
// - Java (tree-sitter): package, extends/implements, fields, constants,
//   method invocations, @Inject fields
// - Python (tree-sitter): module-qualified names, bases, decorators,
//   docstrings, calls, constants

func TestKotlin_InheritanceAndCalls(t *testing.T) {
	t.Parallel()

	res := extractString(t, "app/Bar.kt", kotlinSample)

	bar := findSymbol(t, res, "Bar", model.KindClass)
	assert.Equal(t, "com.example.app", bar.Scope)
	assert.Equal(t, "com.example.app.Bar", bar.QualifiedName)
	assert.Equal(t, 5, bar.StartLine)
	assert.Equal(t, 13, bar.EndLine)

	ext, ok := edgeTo(res, model.EdgeExtends, "Foo")
	require.True(t, ok)
	assert.Equal(t, bar.ID, ext.SourceSymbolID)
	assert.Equal(t, "com.example.core", ext.Target.ScopeHint)
	assert.Equal(t, model.Unresolved, ext.Target.State)

	handleTap := findSymbol(t, res, "handleTap", model.KindFunction)
	assert.Equal(t, "com.example.app.Bar.handleTap", handleTap.QualifiedName)
	call, ok := edgeTo(res, model.EdgeCall, "onClick")
	require.True(t, ok)
	assert.Equal(t, 7, call.Line)
	assert.Equal(t, handleTap.ID, call.SourceSymbolID)
	assert.Equal(t, "onClick()", call.Context)

	// The declaring occurrence of onClick is not a call.
	for _, e := range edgesOfKind(res, model.EdgeCall) {
		if e.Target.Name == "onClick" {
			assert.Equal(t, 7, e.Line)
		}
	}
	// The supertype on the header is an extends edge, not a reference.
	_, ok = edgeTo(res, model.EdgeReference, "Foo")
	assert.False(t, ok)
}

func TestKotlin_Supertypes(t *testing.T) {
	t.Parallel()

	res := extractString(t, "a/Types.kt", `package a

interface Clickable : Widget
sealed class Shape(val id: Int) : Base(id), Clickable, Comparable<Shape> {
}
data class Point(
    val x: Int,
    val y: Int,
) : Serializable
object Registry : Clickable by DefaultClickable
`)
	clickable := findSymbol(t, res, "Clickable", model.KindInterface)
	shape := findSymbol(t, res, "Shape", model.KindClass)
	point := findSymbol(t, res, "Point", model.KindClass)
	registry := findSymbol(t, res, "Registry", model.KindObject)

	type rel struct {
		from string
		kind model.EdgeKind
		to   string
	}
	var got []rel
	names := map[string]string{clickable.ID: "Clickable", shape.ID: "Shape", point.ID: "Point", registry.ID: "Registry"}
	for _, e := range res.Edges {
		if e.Kind.IsInheritance() {
			got = append(got, rel{names[e.SourceSymbolID], e.Kind, e.Target.Name})
		}
	}
	assert.ElementsMatch(t, []rel{
		{"Clickable", model.EdgeExtends, "Widget"},
		{"Shape", model.EdgeExtends, "Base"},
		{"Shape", model.EdgeImplements, "Clickable"},
		{"Shape", model.EdgeImplements, "Comparable"},
		{"Point", model.EdgeImplements, "Serializable"},
		{"Registry", model.EdgeImplements, "Clickable"},
	}, got)

	x := findSymbol(t, res, "x", model.KindProperty)
	assert.Equal(t, "a.Point.x", x.QualifiedName)
	assert.Equal(t, 9, point.EndLine)
}

func TestKotlin_VisibilityAnnotationsAndDI(t *testing.T) {
	t.Parallel()

	res := extractString(t, "a/Di.kt", `package a

class Presenter @Inject constructor(
    private val repo: UserRepository,
    tracker: Tracker,
) {
    @Inject
    lateinit var logger: Logger

    @Deprecated("old")
    internal fun legacy() {
        val local = 1
    }

    private fun hidden() = 42

    companion object {
        const val TAG = "p"
    }
}

@Module
object AppModule {
    @Provides
    fun provideRepo(api: Api): UserRepository = RealRepository(api)
}
`)
	presenter := findSymbol(t, res, "Presenter", model.KindClass)

	var injected []string
	for _, e := range edgesOfKind(res, model.EdgeInjects) {
		assert.Equal(t, presenter.ID, e.SourceSymbolID)
		injected = append(injected, e.Target.Name)
	}
	assert.ElementsMatch(t, []string{"UserRepository", "Tracker", "Logger"}, injected)

	logger := findSymbol(t, res, "logger", model.KindProperty)
	assert.Equal(t, []string{"Inject"}, logger.Annotations)

	legacy := findSymbol(t, res, "legacy", model.KindFunction)
	assert.Equal(t, model.VisibilityInternal, legacy.Visibility)
	assert.Equal(t, []string{"Deprecated"}, legacy.Annotations)
	assert.False(t, hasSymbol(res, "local"), "locals are not members")

	hidden := findSymbol(t, res, "hidden", model.KindFunction)
	assert.Equal(t, model.VisibilityPrivate, hidden.Visibility)
	assert.Equal(t, hidden.StartLine, hidden.EndLine)

	companion := findSymbol(t, res, "Companion", model.KindObject)
	assert.Equal(t, "a.Presenter.Companion", companion.QualifiedName)
	tag := findSymbol(t, res, "TAG", model.KindConstant)
	assert.Equal(t, "a.Presenter.Companion.TAG", tag.QualifiedName)

	provide := findSymbol(t, res, "provideRepo", model.KindFunction)
	provides, ok := edgeTo(res, model.EdgeProvides, "UserRepository")
	require.True(t, ok)
	assert.Equal(t, provide.ID, provides.SourceSymbolID)
	assert.Equal(t, []string{"Module"}, findSymbol(t, res, "AppModule", model.KindObject).Annotations)
}

func TestKotlin_ResourceRefs(t *testing.T) {
	t.Parallel()

	res := extractString(t, "a/Screen.kt", `class Screen {
    fun title() = getString(R.string.title) + R.layout.screen_main
}
`)
	assert.Equal(t, []model.ResourceRef{
		{Type: "string", Name: "title", Line: 2},
		{Type: "layout", Name: "screen_main", Line: 2},
	}, res.Resources)
}

func TestSwift_InheritanceRules(t *testing.T) {
	t.Parallel()

	res := extractString(t, "Sources/App/View.swift", `import UIKit

protocol Tappable: AnyObject {}

public class BaseView: UIView, Tappable {
    @IBOutlet weak var label: UILabel!

    class func make() -> BaseView { BaseView() }

    private func tap() {
        handle()
    }
}

struct Point: Equatable {}

extension Point: Hashable {}
`)
	require.Len(t, res.Imports, 1)
	assert.Equal(t, "UIKit", res.Imports[0].Path)

	baseView := findSymbol(t, res, "BaseView", model.KindClass)
	assert.Equal(t, model.VisibilityPublic, baseView.Visibility)
	point := findSymbol(t, res, "Point", model.KindStruct)
	ext := findSymbol(t, res, "Point", model.KindExtension)
	tappable := findSymbol(t, res, "Tappable", model.KindProtocol)

	type rel struct {
		from string
		kind model.EdgeKind
		to   string
	}
	names := map[string]string{baseView.ID: "BaseView", point.ID: "Point", ext.ID: "ext Point", tappable.ID: "Tappable"}
	var got []rel
	for _, e := range res.Edges {
		if e.Kind.IsInheritance() {
			got = append(got, rel{names[e.SourceSymbolID], e.Kind, e.Target.Name})
		}
	}
	assert.ElementsMatch(t, []rel{
		{"Tappable", model.EdgeExtends, "AnyObject"},
		{"BaseView", model.EdgeExtends, "UIView"},
		{"BaseView", model.EdgeImplements, "Tappable"},
		{"Point", model.EdgeImplements, "Equatable"},
		{"ext Point", model.EdgeImplements, "Hashable"},
	}, got)

	label := findSymbol(t, res, "label", model.KindProperty)
	assert.Equal(t, []string{"IBOutlet"}, label.Annotations)
	assert.Equal(t, model.VisibilityInternal, label.Visibility)
	assert.Equal(t, "BaseView.label", label.QualifiedName)

	factory := findSymbol(t, res, "make", model.KindFunction)
	assert.Equal(t, "BaseView.make", factory.QualifiedName)
	tap := findSymbol(t, res, "tap", model.KindFunction)
	assert.Equal(t, model.VisibilityPrivate, tap.Visibility)

	call, ok := edgeTo(res, model.EdgeCall, "handle")
	require.True(t, ok)
	assert.Equal(t, tap.ID, call.SourceSymbolID)
}

func TestObjC_InterfacesCategoriesImplementations(t *testing.T) {
	t.Parallel()

	res := extractString(t, "Classes/Foo.m", `#import <UIKit/UIKit.h>
#import "Foo.h"

@interface Foo : NSObject <Bar, Baz>
@property (nonatomic, strong) NSString *title;
- (void)doThing:(int)x;
@end

@interface Foo (Extras)
- (void)extra;
@end

@implementation Foo
- (void)doThing:(int)x {
    [self extra];
}
@end

@implementation Qux
@end
`)
	assert.Equal(t, []model.Import{{Path: "UIKit/UIKit", Line: 1}, {Path: "Foo", Line: 2}}, res.Imports)

	foo := findSymbol(t, res, "Foo", model.KindClass)
	assert.Equal(t, 4, foo.StartLine)
	assert.Equal(t, 7, foo.EndLine)

	category := findSymbol(t, res, "Foo+Extras", model.KindObject)
	ext, ok := edgeTo(res, model.EdgeExtends, "Foo")
	require.True(t, ok)
	assert.Equal(t, category.ID, ext.SourceSymbolID)

	sup, ok := edgeTo(res, model.EdgeExtends, "NSObject")
	require.True(t, ok)
	assert.Equal(t, foo.ID, sup.SourceSymbolID)
	for _, proto := range []string{"Bar", "Baz"} {
		e, ok := edgeTo(res, model.EdgeImplements, proto)
		require.True(t, ok, proto)
		assert.Equal(t, foo.ID, e.SourceSymbolID)
	}

	title := findSymbol(t, res, "title", model.KindProperty)
	assert.Equal(t, "Foo.title", title.QualifiedName)

	// The interface declaration and the implementation are both indexed.
	var doThings []model.Symbol
	for _, s := range res.Symbols {
		if s.Name == "doThing" {
			doThings = append(doThings, s)
		}
	}
	require.Len(t, doThings, 2)
	assert.Equal(t, 0, doThings[0].Ordinal)
	assert.Equal(t, 1, doThings[1].Ordinal)
	assert.Equal(t, 14, doThings[1].StartLine)
	assert.Equal(t, 16, doThings[1].EndLine)

	call, ok := edgeTo(res, model.EdgeCall, "extra")
	require.True(t, ok)
	assert.Equal(t, doThings[1].ID, call.SourceSymbolID)

	// @implementation Foo does not duplicate the class; Qux has no interface.
	classes := 0
	for _, s := range res.Symbols {
		if s.Kind == model.KindClass {
			classes++
		}
	}
	assert.Equal(t, 2, classes)
	qux := findSymbol(t, res, "Qux", model.KindClass)
	assert.Equal(t, 19, qux.StartLine)
	assert.Equal(t, 20, qux.EndLine)
}

func TestObjC_Typedefs(t *testing.T) {
	t.Parallel()

	res := extractString(t, "Classes/Types.h", `typedef NS_ENUM(NSInteger, Direction) {
    DirectionUp,
    DirectionDown,
};

typedef struct {
    int x;
} Vector;

typedef NSString *Identifier;
`)
	assert.Equal(t, 1, findSymbol(t, res, "Direction", model.KindEnum).StartLine)
	vector := findSymbol(t, res, "Vector", model.KindStruct)
	assert.Equal(t, 6, vector.StartLine)
	assert.Equal(t, 8, vector.EndLine)
	findSymbol(t, res, "Identifier", model.KindTypeAlias)
}

func TestPerl_PackagesAndParents(t *testing.T) {
	t.Parallel()

	res := extractString(t, "lib/My/Child.pm", `package My::Base;
use strict;

sub new {
    my ($class) = @_;
    return bless {}, $class;
}

package My::Child;
use parent -norequire, 'My::Base';
our $VERSION = '1.0';
use constant LIMIT => 10;

sub _helper { return helper_two(1); }

=head1 NAME

Not::Code - SomeType here

=cut

1;
`)
	base := findSymbol(t, res, "My::Base", model.KindPackage)
	assert.Equal(t, 1, base.StartLine)
	assert.Equal(t, 8, base.EndLine)

	child := findSymbol(t, res, "My::Child", model.KindPackage)
	ext, ok := edgeTo(res, model.EdgeExtends, "My::Base")
	require.True(t, ok)
	assert.Equal(t, child.ID, ext.SourceSymbolID)

	newSub := findSymbol(t, res, "new", model.KindFunction)
	assert.Equal(t, "My::Base::new", newSub.QualifiedName)
	assert.Equal(t, 7, newSub.EndLine)

	assert.Equal(t, "My::Child::VERSION", findSymbol(t, res, "VERSION", model.KindProperty).QualifiedName)
	assert.Equal(t, "My::Child::LIMIT", findSymbol(t, res, "LIMIT", model.KindConstant).QualifiedName)

	helper := findSymbol(t, res, "_helper", model.KindFunction)
	assert.Equal(t, model.VisibilityPrivate, helper.Visibility)
	call, ok := edgeTo(res, model.EdgeCall, "helper_two")
	require.True(t, ok)
	assert.Equal(t, helper.ID, call.SourceSymbolID)

	_, ok = edgeTo(res, model.EdgeReference, "SomeType")
	assert.False(t, ok, "POD is not code")
}

func TestPerl_ISABeforePackage(t *testing.T) {
	t.Parallel()

	res := extractString(t, "lib/Legacy.pm", `our @ISA = qw(Exporter Base::Thing);
package Legacy;
sub run { 1 }
`)
	legacy := findSymbol(t, res, "Legacy", model.KindPackage)
	var parents []string
	for _, e := range edgesOfKind(res, model.EdgeExtends) {
		assert.Equal(t, legacy.ID, e.SourceSymbolID)
		parents = append(parents, e.Target.Name)
	}
	assert.Equal(t, []string{"Exporter", "Base::Thing"}, parents)
	assert.False(t, hasSymbol(res, "ISA"))
}

func TestJava_TreeSitter(t *testing.T) {
	t.Parallel()

	res := extractString(t, "src/main/java/com/example/Widget.java", `package com.example;

import com.example.base.Base;
import java.util.*;

/** A widget. */
@Deprecated
public class Widget extends Base implements Runnable, Comparable<Widget> {
    public static final int MAX_SIZE = 10;

    @Inject Repo repo;

    public void run() {
        helper();
    }

    private void helper() {}
}
`)
	require.Len(t, res.Imports, 2)
	assert.Equal(t, model.Import{Path: "com.example.base.Base", Line: 3}, res.Imports[0])
	assert.Equal(t, model.Import{Path: "java.util", Line: 4, IsWildcard: true}, res.Imports[1])

	widget := findSymbol(t, res, "Widget", model.KindClass)
	assert.Equal(t, "com.example.Widget", widget.QualifiedName)
	assert.Equal(t, 8, widget.StartLine)
	assert.Equal(t, 18, widget.EndLine)
	assert.Equal(t, model.VisibilityPublic, widget.Visibility)
	assert.Equal(t, []string{"Deprecated"}, widget.Annotations)
	assert.Equal(t, "A widget.", widget.Doc)

	ext, ok := edgeTo(res, model.EdgeExtends, "Base")
	require.True(t, ok)
	assert.Equal(t, widget.ID, ext.SourceSymbolID)
	assert.Equal(t, "com.example.base", ext.Target.ScopeHint)
	_, ok = edgeTo(res, model.EdgeImplements, "Runnable")
	assert.True(t, ok)
	_, ok = edgeTo(res, model.EdgeImplements, "Comparable")
	assert.True(t, ok)

	maxSize := findSymbol(t, res, "MAX_SIZE", model.KindConstant)
	assert.Equal(t, "com.example.Widget.MAX_SIZE", maxSize.QualifiedName)

	repo := findSymbol(t, res, "repo", model.KindProperty)
	assert.Equal(t, model.VisibilityInternal, repo.Visibility)
	inj, ok := edgeTo(res, model.EdgeInjects, "Repo")
	require.True(t, ok)
	assert.Equal(t, widget.ID, inj.SourceSymbolID)

	run := findSymbol(t, res, "run", model.KindFunction)
	call, ok := edgeTo(res, model.EdgeCall, "helper")
	require.True(t, ok)
	assert.Equal(t, run.ID, call.SourceSymbolID)
	assert.Equal(t, 14, call.Line)
	assert.Equal(t, model.VisibilityPrivate, findSymbol(t, res, "helper", model.KindFunction).Visibility)
}

func TestPython_TreeSitter(t *testing.T) {
	t.Parallel()

	res := extractString(t, "app/service.py", `from app.base import Base
import os

MAX_SIZE = 10


class Service(Base, metaclass=Meta):
    """Serves things."""

    retries = 3

    @staticmethod
    def run(x):
        total = 0
        return helper(x)


def _helper(x):
    return os.path.normpath(x)
`)
	assert.Equal(t, []model.Import{
		{Path: "app.base.Base", Line: 1},
		{Path: "os", Line: 2},
	}, res.Imports)

	service := findSymbol(t, res, "Service", model.KindClass)
	assert.Equal(t, "app.service.Service", service.QualifiedName)
	assert.Equal(t, "Serves things.", service.Doc)
	assert.Equal(t, 7, service.StartLine)
	assert.Equal(t, 15, service.EndLine)

	ext, ok := edgeTo(res, model.EdgeExtends, "Base")
	require.True(t, ok)
	assert.Equal(t, service.ID, ext.SourceSymbolID)
	assert.Equal(t, "app.base", ext.Target.ScopeHint)
	_, ok = edgeTo(res, model.EdgeExtends, "Meta")
	assert.False(t, ok, "keyword arguments are not bases")

	run := findSymbol(t, res, "run", model.KindFunction)
	assert.Equal(t, "app.service.Service.run", run.QualifiedName)
	assert.Equal(t, []string{"staticmethod"}, run.Annotations)
	assert.Equal(t, 13, run.StartLine)

	assert.Equal(t, "app.service.MAX_SIZE", findSymbol(t, res, "MAX_SIZE", model.KindConstant).QualifiedName)
	assert.Equal(t, "app.service.Service.retries", findSymbol(t, res, "retries", model.KindProperty).QualifiedName)
	assert.False(t, hasSymbol(res, "total"))

	helper := findSymbol(t, res, "_helper", model.KindFunction)
	assert.Equal(t, model.VisibilityPrivate, helper.Visibility)

	call, ok := edgeTo(res, model.EdgeCall, "helper")
	require.True(t, ok)
	assert.Equal(t, run.ID, call.SourceSymbolID)
	norm, ok := edgeTo(res, model.EdgeCall, "normpath")
	require.True(t, ok)
	assert.Equal(t, helper.ID, norm.SourceSymbolID)
}
