package sandbox

import (
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// windowTarget keys listeners registered on the global object.
type windowTarget struct{}

// dom binds an html tree to JS proxies. Everything here runs on the loop.
type dom struct {
	w   *Window
	vm  *goja.Runtime
	doc *html.Node

	proxies   map[*html.Node]*goja.Object
	nodes     map[*goja.Object]*html.Node
	styles    map[*html.Node]*goja.Object
	listeners map[any]map[string][]goja.Value
	started   map[*html.Node]bool
	current   *html.Node
	cookies   []string

	nodeProto     *goja.Object
	elementProto  *goja.Object
	documentProto *goja.Object
}

func newDOM(w *Window, vm *goja.Runtime, doc *html.Node) *dom {
	d := &dom{
		w:         w,
		vm:        vm,
		doc:       doc,
		proxies:   make(map[*html.Node]*goja.Object),
		nodes:     make(map[*goja.Object]*html.Node),
		styles:    make(map[*html.Node]*goja.Object),
		listeners: make(map[any]map[string][]goja.Value),
		started:   make(map[*html.Node]bool),
	}
	d.nodeProto = vm.NewObject()
	d.elementProto = vm.NewObject()
	d.documentProto = vm.NewObject()
	_ = d.elementProto.SetPrototype(d.nodeProto)
	_ = d.documentProto.SetPrototype(d.nodeProto)

	d.defineNode()
	d.defineElement()
	d.defineDocument()
	return d
}

func (d *dom) wrap(n *html.Node) goja.Value {
	if n == nil {
		return goja.Null()
	}
	if obj, ok := d.proxies[n]; ok {
		return obj
	}
	obj := d.vm.NewObject()
	switch n.Type {
	case html.ElementNode:
		_ = obj.SetPrototype(d.elementProto)
	case html.DocumentNode:
		_ = obj.SetPrototype(d.documentProto)
	default:
		_ = obj.SetPrototype(d.nodeProto)
	}
	d.proxies[n] = obj
	d.nodes[obj] = n
	return obj
}

func (d *dom) wrapAll(nodes []*html.Node) goja.Value {
	items := make([]any, len(nodes))
	for i, n := range nodes {
		items[i] = d.wrap(n)
	}
	return d.vm.NewArray(items...)
}

func (d *dom) unwrap(v goja.Value) *html.Node {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return d.nodes[obj]
}

func (d *dom) self(call goja.FunctionCall) *html.Node {
	n := d.unwrap(call.This)
	if n == nil {
		panic(d.vm.NewTypeError("Illegal invocation"))
	}
	return n
}

func (d *dom) mustNode(v goja.Value, method string) *html.Node {
	n := d.unwrap(v)
	if n == nil {
		panic(d.vm.NewTypeError(fmt.Sprintf("Failed to execute '%s' on 'Node': parameter 1 is not of type 'Node'.", method)))
	}
	return n
}

// throwDOM raises an Error carrying a DOMException name.
func (d *dom) throwDOM(name, msg string) {
	obj, err := d.vm.New(d.vm.Get("Error"), d.vm.ToValue(msg))
	if err != nil {
		panic(d.vm.NewTypeError(msg))
	}
	_ = obj.Set("name", name)
	panic(obj)
}

func (d *dom) accessor(proto *goja.Object, name string, get func(*html.Node) any, set func(*html.Node, goja.Value)) {
	vm := d.vm
	getter := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(get(d.self(call)))
	})
	var setter goja.Value
	if set != nil {
		setter = vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(d.self(call), call.Argument(0))
			return goja.Undefined()
		})
	}
	_ = proto.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE)
}

func (d *dom) getter(proto *goja.Object, name string, get func(*html.Node) any) {
	d.accessor(proto, name, get, nil)
}

func (d *dom) method(proto *goja.Object, name string, fn func(*html.Node, goja.FunctionCall) any) {
	_ = proto.Set(name, func(call goja.FunctionCall) goja.Value {
		return d.vm.ToValue(fn(d.self(call), call))
	})
}

func (d *dom) defineNode() {
	p := d.nodeProto

	d.getter(p, "nodeType", func(n *html.Node) any { return nodeType(n) })
	d.getter(p, "nodeName", func(n *html.Node) any { return nodeName(n) })
	d.getter(p, "parentNode", func(n *html.Node) any { return d.wrap(n.Parent) })
	d.getter(p, "parentElement", func(n *html.Node) any {
		if n.Parent != nil && n.Parent.Type == html.ElementNode {
			return d.wrap(n.Parent)
		}
		return nil
	})
	d.getter(p, "childNodes", func(n *html.Node) any { return d.wrapAll(childNodes(n, false)) })
	d.getter(p, "firstChild", func(n *html.Node) any { return d.wrap(n.FirstChild) })
	d.getter(p, "lastChild", func(n *html.Node) any { return d.wrap(n.LastChild) })
	d.getter(p, "nextSibling", func(n *html.Node) any { return d.wrap(n.NextSibling) })
	d.getter(p, "previousSibling", func(n *html.Node) any { return d.wrap(n.PrevSibling) })
	d.getter(p, "ownerDocument", func(n *html.Node) any {
		if n.Type == html.DocumentNode {
			return nil
		}
		return d.wrap(d.doc)
	})
	d.getter(p, "isConnected", func(n *html.Node) any { return d.connected(n) })

	d.accessor(p, "textContent", func(n *html.Node) any {
		if n.Type == html.DocumentNode || n.Type == html.DoctypeNode {
			return nil
		}
		return textContent(n)
	}, func(n *html.Node, v goja.Value) {
		d.setText(n, valueString(v))
	})
	data := func(n *html.Node) any {
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			return n.Data
		}
		return nil
	}
	setData := func(n *html.Node, v goja.Value) {
		if n.Type == html.TextNode || n.Type == html.CommentNode {
			n.Data = valueString(v)
		}
	}
	d.accessor(p, "nodeValue", data, setData)
	d.accessor(p, "data", data, setData)

	d.method(p, "appendChild", func(n *html.Node, call goja.FunctionCall) any {
		child := d.mustNode(call.Argument(0), "appendChild")
		d.insert(n, child, nil)
		return d.wrap(child)
	})
	d.method(p, "insertBefore", func(n *html.Node, call goja.FunctionCall) any {
		child := d.mustNode(call.Argument(0), "insertBefore")
		ref := d.unwrap(call.Argument(1))
		if ref != nil && ref.Parent != n {
			d.throwDOM("NotFoundError", "The node before which the new node is to be inserted is not a child of this node.")
		}
		d.insert(n, child, ref)
		return d.wrap(child)
	})
	d.method(p, "removeChild", func(n *html.Node, call goja.FunctionCall) any {
		child := d.mustNode(call.Argument(0), "removeChild")
		if child.Parent != n {
			d.throwDOM("NotFoundError", "The node to be removed is not a child of this node.")
		}
		n.RemoveChild(child)
		return d.wrap(child)
	})
	d.method(p, "replaceChild", func(n *html.Node, call goja.FunctionCall) any {
		child := d.mustNode(call.Argument(0), "replaceChild")
		old := d.mustNode(call.Argument(1), "replaceChild")
		if old.Parent != n {
			d.throwDOM("NotFoundError", "The node to be replaced is not a child of this node.")
		}
		if child != old {
			d.insert(n, child, old)
			n.RemoveChild(old)
		}
		return d.wrap(old)
	})
	d.method(p, "contains", func(n *html.Node, call goja.FunctionCall) any {
		for c := d.unwrap(call.Argument(0)); c != nil; c = c.Parent {
			if c == n {
				return true
			}
		}
		return false
	})
	d.method(p, "hasChildNodes", func(n *html.Node, _ goja.FunctionCall) any { return n.FirstChild != nil })
	d.method(p, "cloneNode", func(n *html.Node, call goja.FunctionCall) any {
		return d.wrap(cloneNode(n, call.Argument(0).ToBoolean()))
	})

	d.method(p, "addEventListener", func(n *html.Node, call goja.FunctionCall) any {
		d.addListener(n, call.Argument(0).String(), call.Argument(1))
		return nil
	})
	d.method(p, "removeEventListener", func(n *html.Node, call goja.FunctionCall) any {
		d.removeListener(n, call.Argument(0).String(), call.Argument(1))
		return nil
	})
	d.method(p, "dispatchEvent", func(n *html.Node, call goja.FunctionCall) any {
		return d.dispatch(n, d.wrap(n).(*goja.Object), call.Argument(0))
	})
}

func (d *dom) defineElement() {
	p := d.elementProto

	d.getter(p, "tagName", func(n *html.Node) any { return nodeName(n) })
	d.getter(p, "localName", func(n *html.Node) any { return n.Data })
	d.reflect(p, "id", "id")
	d.reflect(p, "className", "class")
	for _, name := range []string{"src", "href", "type", "rel", "name", "lang", "dir", "title", "alt", "charset"} {
		d.reflect(p, name, name)
	}

	d.accessor(p, "innerHTML", func(n *html.Node) any {
		return htmlquery.OutputHTML(n, false)
	}, func(n *html.Node, v goja.Value) {
		d.setInnerHTML(n, valueString(v))
	})
	d.accessor(p, "outerHTML", func(n *html.Node) any {
		return htmlquery.OutputHTML(n, true)
	}, func(n *html.Node, v goja.Value) {
		d.setOuterHTML(n, valueString(v))
	})
	d.accessor(p, "text", func(n *html.Node) any { return textContent(n) }, func(n *html.Node, v goja.Value) {
		d.setText(n, valueString(v))
	})

	d.getter(p, "children", func(n *html.Node) any { return d.wrapAll(childNodes(n, true)) })
	d.getter(p, "childElementCount", func(n *html.Node) any { return len(childNodes(n, true)) })
	d.getter(p, "firstElementChild", func(n *html.Node) any { return d.wrap(nextElement(n.FirstChild, true)) })
	d.getter(p, "lastElementChild", func(n *html.Node) any { return d.wrap(nextElement(n.LastChild, false)) })
	d.getter(p, "nextElementSibling", func(n *html.Node) any { return d.wrap(nextElement(n.NextSibling, true)) })
	d.getter(p, "previousElementSibling", func(n *html.Node) any { return d.wrap(nextElement(n.PrevSibling, false)) })
	d.getter(p, "style", func(n *html.Node) any { return d.style(n) })
	d.getter(p, "classList", func(n *html.Node) any { return d.classList(n) })

	d.method(p, "getAttribute", func(n *html.Node, call goja.FunctionCall) any {
		if v, ok := getAttr(n, call.Argument(0).String()); ok {
			return v
		}
		return nil
	})
	d.method(p, "setAttribute", func(n *html.Node, call goja.FunctionCall) any {
		setAttr(n, call.Argument(0).String(), call.Argument(1).String())
		return nil
	})
	d.method(p, "removeAttribute", func(n *html.Node, call goja.FunctionCall) any {
		removeAttr(n, call.Argument(0).String())
		return nil
	})
	d.method(p, "hasAttribute", func(n *html.Node, call goja.FunctionCall) any {
		_, ok := getAttr(n, call.Argument(0).String())
		return ok
	})
	d.method(p, "getAttributeNames", func(n *html.Node, _ goja.FunctionCall) any {
		names := make([]any, len(n.Attr))
		for i, a := range n.Attr {
			names[i] = a.Key
		}
		return d.vm.NewArray(names...)
	})
	d.method(p, "matches", func(n *html.Node, call goja.FunctionCall) any {
		return goquery.NewDocumentFromNode(n).Is(call.Argument(0).String())
	})
	d.method(p, "closest", func(n *html.Node, call goja.FunctionCall) any {
		found := goquery.NewDocumentFromNode(n).Closest(call.Argument(0).String())
		if found.Length() == 0 {
			return nil
		}
		return d.wrap(found.Nodes[0])
	})
	d.method(p, "remove", func(n *html.Node, _ goja.FunctionCall) any {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return nil
	})
	d.method(p, "append", func(n *html.Node, call goja.FunctionCall) any {
		for _, arg := range call.Arguments {
			d.insert(n, d.nodeOrText(arg), nil)
		}
		return nil
	})
	d.method(p, "prepend", func(n *html.Node, call goja.FunctionCall) any {
		ref := n.FirstChild
		for _, arg := range call.Arguments {
			d.insert(n, d.nodeOrText(arg), ref)
		}
		return nil
	})
	d.defineQueries(p)
}

func (d *dom) defineDocument() {
	p := d.documentProto

	d.getter(p, "documentElement", func(n *html.Node) any { return d.wrap(nextElement(n.FirstChild, true)) })
	d.getter(p, "head", func(n *html.Node) any { return d.wrap(findElement(n, atom.Head)) })
	d.getter(p, "body", func(n *html.Node) any { return d.wrap(findElement(n, atom.Body)) })
	d.accessor(p, "title", func(n *html.Node) any {
		if t := findElement(n, atom.Title); t != nil {
			return strings.Join(strings.Fields(textContent(t)), " ")
		}
		return ""
	}, func(n *html.Node, v goja.Value) {
		t := findElement(n, atom.Title)
		if t == nil {
			head := findElement(n, atom.Head)
			if head == nil {
				return
			}
			t = newElement("title")
			head.AppendChild(t)
		}
		d.setText(t, valueString(v))
	})
	d.getter(p, "hidden", func(*html.Node) any { return !d.w.opts.PretendToBeVisual })
	d.getter(p, "visibilityState", func(*html.Node) any {
		if d.w.opts.PretendToBeVisual {
			return "visible"
		}
		return "prerender"
	})
	d.getter(p, "readyState", func(*html.Node) any { return "complete" })
	d.getter(p, "currentScript", func(*html.Node) any { return d.wrap(d.current) })
	d.getter(p, "defaultView", func(*html.Node) any { return d.vm.GlobalObject() })
	d.getter(p, "location", func(*html.Node) any { return d.vm.Get("location") })
	d.getter(p, "URL", func(*html.Node) any { return d.w.url.String() })
	d.getter(p, "documentURI", func(*html.Node) any { return d.w.url.String() })
	d.getter(p, "referrer", func(*html.Node) any { return "" })
	d.getter(p, "characterSet", func(*html.Node) any { return "UTF-8" })
	d.getter(p, "contentType", func(*html.Node) any { return "text/html" })
	d.getter(p, "compatMode", func(*html.Node) any { return "CSS1Compat" })
	d.accessor(p, "cookie", func(*html.Node) any {
		return strings.Join(d.cookies, "; ")
	}, func(_ *html.Node, v goja.Value) {
		d.setCookie(valueString(v))
	})

	d.method(p, "createElement", func(_ *html.Node, call goja.FunctionCall) any {
		return d.wrap(newElement(call.Argument(0).String()))
	})
	d.method(p, "createElementNS", func(_ *html.Node, call goja.FunctionCall) any {
		return d.wrap(newElement(call.Argument(1).String()))
	})
	d.method(p, "createTextNode", func(_ *html.Node, call goja.FunctionCall) any {
		return d.wrap(&html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
	})
	d.method(p, "createComment", func(_ *html.Node, call goja.FunctionCall) any {
		return d.wrap(&html.Node{Type: html.CommentNode, Data: call.Argument(0).String()})
	})
	d.method(p, "getElementById", func(n *html.Node, call goja.FunctionCall) any {
		id := call.Argument(0).String()
		found := walkElements(n, func(e *html.Node) bool {
			v, ok := getAttr(e, "id")
			return ok && v == id
		}, true)
		if len(found) == 0 {
			return nil
		}
		return d.wrap(found[0])
	})
	d.defineQueries(p)
}

func (d *dom) defineQueries(p *goja.Object) {
	d.method(p, "querySelector", func(n *html.Node, call goja.FunctionCall) any {
		found := goquery.NewDocumentFromNode(n).Find(call.Argument(0).String())
		if found.Length() == 0 {
			return nil
		}
		return d.wrap(found.Nodes[0])
	})
	d.method(p, "querySelectorAll", func(n *html.Node, call goja.FunctionCall) any {
		return d.wrapAll(goquery.NewDocumentFromNode(n).Find(call.Argument(0).String()).Nodes)
	})
	d.method(p, "getElementsByTagName", func(n *html.Node, call goja.FunctionCall) any {
		tag := call.Argument(0).String()
		return d.wrapAll(walkElements(n, func(e *html.Node) bool {
			return tag == "*" || strings.EqualFold(e.Data, tag)
		}, false))
	})
	d.method(p, "getElementsByClassName", func(n *html.Node, call goja.FunctionCall) any {
		want := strings.Fields(call.Argument(0).String())
		return d.wrapAll(walkElements(n, func(e *html.Node) bool {
			if len(want) == 0 {
				return false
			}
			v, _ := getAttr(e, "class")
			have := strings.Fields(v)
			for _, c := range want {
				if !slices.Contains(have, c) {
					return false
				}
			}
			return true
		}, false))
	})
}

// reflect maps a property onto an attribute.
func (d *dom) reflect(p *goja.Object, prop, attr string) {
	d.accessor(p, prop, func(n *html.Node) any {
		v, _ := getAttr(n, attr)
		return v
	}, func(n *html.Node, v goja.Value) {
		setAttr(n, attr, valueString(v))
	})
}

// bindTarget gives a plain object event target methods keyed by key.
func (d *dom) bindTarget(obj *goja.Object, key any) {
	_ = obj.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		d.addListener(key, call.Argument(0).String(), call.Argument(1))
		return goja.Undefined()
	})
	_ = obj.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		d.removeListener(key, call.Argument(0).String(), call.Argument(1))
		return goja.Undefined()
	})
	_ = obj.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		return d.vm.ToValue(d.dispatch(key, obj, call.Argument(0)))
	})
}

func (d *dom) addListener(key any, typ string, fn goja.Value) {
	if fn == nil || goja.IsUndefined(fn) || goja.IsNull(fn) {
		return
	}
	byType := d.listeners[key]
	if byType == nil {
		byType = make(map[string][]goja.Value)
		d.listeners[key] = byType
	}
	for _, l := range byType[typ] {
		if l.StrictEquals(fn) {
			return
		}
	}
	byType[typ] = append(byType[typ], fn)
}

func (d *dom) removeListener(key any, typ string, fn goja.Value) {
	byType := d.listeners[key]
	if byType == nil || fn == nil {
		return
	}
	byType[typ] = slices.DeleteFunc(byType[typ], func(l goja.Value) bool { return l.StrictEquals(fn) })
}

// dispatch runs the on<type> handler and the listeners of key. It reports
// whether the event was not cancelled.
func (d *dom) dispatch(key any, target *goja.Object, ev goja.Value) bool {
	event, ok := ev.(*goja.Object)
	if !ok {
		panic(d.vm.NewTypeError("Failed to execute 'dispatchEvent': parameter 1 is not of type 'Event'."))
	}
	typ := valueString(event.Get("type"))
	if t := event.Get("target"); t == nil || goja.IsNull(t) || goja.IsUndefined(t) {
		_ = event.Set("target", target)
	}
	_ = event.Set("currentTarget", target)

	if h, ok := goja.AssertFunction(target.Get("on" + typ)); ok {
		d.invoke(h, target, event)
	}
	for _, l := range slices.Clone(d.listeners[key][typ]) {
		if fn, ok := goja.AssertFunction(l); ok {
			d.invoke(fn, target, event)
			continue
		}
		if obj, ok := l.(*goja.Object); ok {
			if fn, ok := goja.AssertFunction(obj.Get("handleEvent")); ok {
				d.invoke(fn, obj, event)
			}
		}
	}
	return !event.Get("defaultPrevented").ToBoolean()
}

func (d *dom) invoke(fn goja.Callable, this goja.Value, event goja.Value) {
	if _, err := fn(this, event); err != nil {
		d.w.uncaught(err)
	}
}

// fire dispatches a fresh Event of typ at n.
func (d *dom) fire(n *html.Node, typ string) {
	event, err := d.vm.New(d.vm.Get("Event"), d.vm.ToValue(typ))
	if err != nil {
		event = d.vm.NewObject()
		_ = event.Set("type", typ)
	}
	d.dispatch(n, d.wrap(n).(*goja.Object), event)
}

func (d *dom) insert(parent, child, ref *html.Node) {
	if child.Type == html.DocumentNode {
		d.throwDOM("HierarchyRequestError", "Nodes of type '#document' may not be inserted.")
	}
	for p := parent; p != nil; p = p.Parent {
		if p == child {
			d.throwDOM("HierarchyRequestError", "The new child element contains the parent.")
		}
	}
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	if ref == nil {
		parent.AppendChild(child)
	} else {
		parent.InsertBefore(child, ref)
	}
	d.inserted(child)
}

// inserted starts the scripts of a subtree that became connected.
func (d *dom) inserted(n *html.Node) {
	if !d.connected(n) {
		return
	}
	scripts := walkElements(n, func(e *html.Node) bool { return e.DataAtom == atom.Script }, true)
	if n.Type == html.ElementNode && n.DataAtom == atom.Script {
		scripts = append([]*html.Node{n}, scripts...)
	}
	for _, s := range scripts {
		d.w.startScript(s)
	}
}

func (d *dom) connected(n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == d.doc {
			return true
		}
	}
	return false
}

func (d *dom) nodeOrText(v goja.Value) *html.Node {
	if n := d.unwrap(v); n != nil {
		return n
	}
	return &html.Node{Type: html.TextNode, Data: valueString(v)}
}

func (d *dom) setText(n *html.Node, s string) {
	switch n.Type {
	case html.TextNode, html.CommentNode:
		n.Data = s
		return
	case html.DocumentNode, html.DoctypeNode:
		return
	}
	removeChildren(n)
	if s != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
}

func (d *dom) parseFragment(s string, context *html.Node) []*html.Node {
	nodes, err := html.ParseFragment(strings.NewReader(s), context)
	if err != nil {
		d.throwDOM("SyntaxError", err.Error())
	}
	// fragment-parsed scripts never run
	for _, n := range nodes {
		for _, s := range walkElements(n, func(e *html.Node) bool { return e.DataAtom == atom.Script }, false) {
			d.started[s] = true
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			d.started[n] = true
		}
	}
	return nodes
}

func (d *dom) setInnerHTML(n *html.Node, s string) {
	if n.Type != html.ElementNode {
		return
	}
	nodes := d.parseFragment(s, n)
	removeChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
}

func (d *dom) setOuterHTML(n *html.Node, s string) {
	parent := n.Parent
	if parent == nil {
		return
	}
	if parent.Type == html.DocumentNode {
		d.throwDOM("NoModificationAllowedError", "Failed to set the 'outerHTML' property on 'Element': This element's parent is of type '#document'.")
	}
	for _, c := range d.parseFragment(s, parent) {
		parent.InsertBefore(c, n)
	}
	parent.RemoveChild(n)
}

func (d *dom) style(n *html.Node) *goja.Object {
	if s, ok := d.styles[n]; ok {
		return s
	}
	s := d.vm.NewObject()
	_ = s.Set("setProperty", func(call goja.FunctionCall) goja.Value {
		_ = s.Set(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = s.Set("getPropertyValue", func(call goja.FunctionCall) goja.Value {
		v := s.Get(call.Argument(0).String())
		if v == nil || goja.IsUndefined(v) {
			return d.vm.ToValue("")
		}
		return v
	})
	d.styles[n] = s
	return s
}

func (d *dom) classList(n *html.Node) *goja.Object {
	vm := d.vm
	list := vm.NewObject()
	get := func() []string {
		v, _ := getAttr(n, "class")
		return strings.Fields(v)
	}
	put := func(classes []string) {
		setAttr(n, "class", strings.Join(classes, " "))
	}

	_ = list.Set("contains", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(slices.Contains(get(), call.Argument(0).String()))
	})
	_ = list.Set("add", func(call goja.FunctionCall) goja.Value {
		classes := get()
		for _, a := range call.Arguments {
			if c := a.String(); !slices.Contains(classes, c) {
				classes = append(classes, c)
			}
		}
		put(classes)
		return goja.Undefined()
	})
	_ = list.Set("remove", func(call goja.FunctionCall) goja.Value {
		classes := get()
		for _, a := range call.Arguments {
			c := a.String()
			classes = slices.DeleteFunc(classes, func(s string) bool { return s == c })
		}
		put(classes)
		return goja.Undefined()
	})
	_ = list.Set("toggle", func(call goja.FunctionCall) goja.Value {
		c := call.Argument(0).String()
		classes := get()
		has := slices.Contains(classes, c)
		want := !has
		if len(call.Arguments) > 1 {
			want = call.Argument(1).ToBoolean()
		}
		switch {
		case want && !has:
			classes = append(classes, c)
		case !want && has:
			classes = slices.DeleteFunc(classes, func(s string) bool { return s == c })
		}
		put(classes)
		return vm.ToValue(want)
	})
	_ = list.DefineAccessorProperty("length", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(len(get()))
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = list.Set("toString", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(strings.Join(get(), " "))
	})
	return list
}

func (d *dom) setCookie(raw string) {
	pair, _, _ := strings.Cut(raw, ";")
	pair = strings.TrimSpace(pair)
	name, _, ok := strings.Cut(pair, "=")
	if !ok || name == "" {
		return
	}
	for i, c := range d.cookies {
		if strings.HasPrefix(c, name+"=") {
			d.cookies[i] = pair
			return
		}
	}
	d.cookies = append(d.cookies, pair)
}

func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	case html.DoctypeNode:
		return 10
	}
	return 0
}

func nodeName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		if n.Namespace == "" {
			return strings.ToUpper(n.Data)
		}
		return n.Data
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	}
	return n.Data
}

func newElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

func cloneNode(n *html.Node, deep bool) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      slices.Clone(n.Attr),
	}
	if deep {
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			c.AppendChild(cloneNode(ch, true))
		}
	}
	return c
}

func childNodes(n *html.Node, elementsOnly bool) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !elementsOnly || c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func nextElement(n *html.Node, forward bool) *html.Node {
	for c := n; c != nil; {
		if c.Type == html.ElementNode {
			return c
		}
		if forward {
			c = c.NextSibling
		} else {
			c = c.PrevSibling
		}
	}
	return nil
}

// walkElements collects descendant elements of n matching fn in tree order.
func walkElements(n *html.Node, fn func(*html.Node) bool, first bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node) bool
	walk = func(p *html.Node) bool {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && fn(c) {
				out = append(out, c)
				if first {
					return true
				}
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(n)
	return out
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	found := walkElements(n, func(e *html.Node) bool { return e.DataAtom == a }, true)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		return n.Data
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
}

func getAttr(n *html.Node, key string) (string, bool) {
	key = strings.ToLower(key)
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	key = strings.ToLower(key)
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	key = strings.ToLower(key)
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && a.Key == key
	})
}

// valueString converts like the DOM does for nullable string setters.
func valueString(v goja.Value) string {
	if v == nil || goja.IsNull(v) || goja.IsUndefined(v) {
		return ""
	}
	return v.String()
}
