package engine

// MaxInheritanceDepth bounds every ancestor walk, guarding against malformed
// or adversarial hierarchies.
const MaxInheritanceDepth = 10

// Ancestry returns the ordered levels to inspect for e, most-derived first.
// Without inherit, or for assemblies, the chain is just [e].
//
// Type walks follow the base-type chain, stop before the universal root type,
// never revisit a type and end after MaxInheritanceDepth levels. Method walks
// follow the override chain and stop the first time a declaration's base
// definition resolves back to itself.
func Ancestry(p Provider, e Element, inherit bool) ([]Element, error) {
	if !inherit {
		return []Element{e}, nil
	}

	switch e.Kind {
	case KindType:
		return typeAncestry(p, e)
	case KindMethod:
		return methodAncestry(p, e)
	}
	return []Element{e}, nil
}

func typeAncestry(p Provider, e Element) ([]Element, error) {
	levels := make([]Element, 0, 4)
	visited := make(map[Element]bool)

	for current := e; ; {
		levels = append(levels, current)
		visited[current] = true

		if len(levels) >= MaxInheritanceDepth {
			break
		}

		base, ok, err := p.BaseElement(current)
		if err != nil {
			return nil, err
		}
		if !ok || base.Type == RootTypeName || visited[base] {
			break
		}
		current = base
	}

	return levels, nil
}

func methodAncestry(p Provider, e Element) ([]Element, error) {
	levels := make([]Element, 0, 4)

	for current := e; ; {
		levels = append(levels, current)

		if len(levels) >= MaxInheritanceDepth {
			break
		}

		base, ok, err := p.BaseElement(current)
		if err != nil {
			return nil, err
		}
		if !ok || selfDeclared(current, base) {
			break
		}
		current = base
	}

	return levels, nil
}

// selfDeclared compares the concatenated declaring type name and method name
// of a method and its base definition.
func selfDeclared(method, base Element) bool {
	return method.Type+method.Method == base.Type+base.Method
}
