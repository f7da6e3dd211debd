package harness

// Template placeholders, substituted in this order.
const (
	PlaceholderUserCode     = "{{USER_CODE}}"
	PlaceholderFunctionName = "{{FUNCTION_NAME}}"
	PlaceholderFunctionCall = "{{FUNCTION_CALL}}"
	PlaceholderTestInput    = "{{TEST_INPUT}}"
)

// Each default harness prints the call result on one line: strings verbatim,
// everything else as compact JSON-like text.
var defaultTemplates = map[string]string{
	"python": `import json
import sys
from typing import *

{{USER_CODE}}

if __name__ == "__main__":
    result = {{FUNCTION_CALL}}
    if isinstance(result, str):
        print(result)
    else:
        print(json.dumps(result, separators=(",", ":")))
`,

	"javascript": `{{USER_CODE}}

const __result = {{FUNCTION_CALL}};
console.log(typeof __result === "string" ? __result : JSON.stringify(__result));
`,

	"typescript": `{{USER_CODE}}

const __result: any = {{FUNCTION_CALL}};
console.log(typeof __result === "string" ? __result : JSON.stringify(__result));
`,

	"ruby": `require "json"

{{USER_CODE}}

result = {{FUNCTION_CALL}}
puts(result.is_a?(String) ? result : result.to_json)
`,

	"php": `<?php
{{USER_CODE}}

$solution = new Solution();
$result = {{FUNCTION_CALL}};
echo is_string($result) ? $result : json_encode($result), PHP_EOL;
`,

	"go": `package main

import (
	"encoding/json"
	"fmt"
)

{{USER_CODE}}

func main() {
	result := {{FUNCTION_CALL}}
	if s, ok := interface{}(result).(string); ok {
		fmt.Println(s)
		return
	}
	out, _ := json.Marshal(result)
	fmt.Println(string(out))
}
`,

	"java": `import java.util.*;

{{USER_CODE}}

public class Main {
    public static void main(String[] args) {
        Solution solution = new Solution();
        Object result = {{FUNCTION_CALL}};
        System.out.println(result instanceof String ? (String) result : Harness.format(result));
    }
}

class Harness {
    static String format(Object o) {
        if (o == null) return "null";
        if (o instanceof String) return "\"" + o + "\"";
        if (o instanceof int[]) return join(Arrays.stream((int[]) o).mapToObj(Harness::format).toArray());
        if (o instanceof long[]) return join(Arrays.stream((long[]) o).mapToObj(Harness::format).toArray());
        if (o instanceof double[]) return join(Arrays.stream((double[]) o).mapToObj(Harness::format).toArray());
        if (o instanceof boolean[]) {
            boolean[] b = (boolean[]) o;
            Object[] boxed = new Object[b.length];
            for (int i = 0; i < b.length; i++) boxed[i] = b[i];
            return join(boxed);
        }
        if (o instanceof Object[]) return join((Object[]) o);
        if (o instanceof Collection) return join(((Collection<?>) o).toArray());
        return String.valueOf(o);
    }

    static String join(Object[] items) {
        StringBuilder sb = new StringBuilder("[");
        for (int i = 0; i < items.length; i++) {
            if (i > 0) sb.append(',');
            sb.append(format(items[i]));
        }
        return sb.append(']').toString();
    }
}
`,

	"csharp": `using System;
using System.Collections;
using System.Collections.Generic;
using System.Linq;

{{USER_CODE}}

public class Program {
    public static void Main(string[] args) {
        var solution = new Solution();
        object result = {{FUNCTION_CALL}};
        Console.WriteLine(result is string s ? s : Format(result));
    }

    static string Format(object o) {
        if (o == null) return "null";
        if (o is string s) return "\"" + s + "\"";
        if (o is bool b) return b ? "true" : "false";
        if (o is IEnumerable e) {
            var parts = new List<string>();
            foreach (var x in e) parts.Add(Format(x));
            return "[" + string.Join(",", parts) + "]";
        }
        return Convert.ToString(o, System.Globalization.CultureInfo.InvariantCulture);
    }
}
`,

	"cpp": `#include <bits/stdc++.h>
using namespace std;

{{USER_CODE}}

template <typename T> string __fmt(const T& v);
template <typename T> string __fmt(const vector<T>& v);
string __fmt(const string& s) { return "\"" + s + "\""; }
string __fmt(bool b) { return b ? "true" : "false"; }
template <typename T> string __fmt(const T& v) { ostringstream os; os << v; return os.str(); }
template <typename T> string __fmt(const vector<T>& v) {
    string out = "[";
    for (size_t i = 0; i < v.size(); ++i) {
        if (i) out += ",";
        out += __fmt(static_cast<T>(v[i]));
    }
    return out + "]";
}
template <typename T> void __emit(const T& v) { cout << __fmt(v) << endl; }
void __emit(const string& s) { cout << s << endl; }

int main() {
    Solution solution;
    auto result = {{FUNCTION_CALL}};
    __emit(result);
    return 0;
}
`,

	"c": `#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <stdbool.h>

{{USER_CODE}}

static void __print_int(int v) { printf("%d\n", v); }
static void __print_long(long v) { printf("%ld\n", v); }
static void __print_llong(long long v) { printf("%lld\n", v); }
static void __print_double(double v) { printf("%g\n", v); }
static void __print_bool(bool v) { printf("%s\n", v ? "true" : "false"); }
static void __print_str(const char* v) { printf("%s\n", v ? v : "null"); }

#define __PRINT(x) _Generic((x), \
    bool: __print_bool, \
    int: __print_int, \
    long: __print_long, \
    long long: __print_llong, \
    float: __print_double, \
    double: __print_double, \
    char*: __print_str, \
    const char*: __print_str, \
    default: __print_int)(x)

int main(void) {
    __PRINT({{FUNCTION_CALL}});
    return 0;
}
`,

	"kotlin": `{{USER_CODE}}

fun __format(v: Any?): String = when (v) {
    null -> "null"
    is String -> "\"" + v + "\""
    is IntArray -> v.joinToString(",", "[", "]")
    is LongArray -> v.joinToString(",", "[", "]")
    is DoubleArray -> v.joinToString(",", "[", "]")
    is BooleanArray -> v.joinToString(",", "[", "]")
    is Array<*> -> v.joinToString(",", "[", "]") { __format(it) }
    is Iterable<*> -> v.joinToString(",", "[", "]") { __format(it) }
    else -> v.toString()
}

fun main() {
    val solution = Solution()
    val result: Any? = {{FUNCTION_CALL}}
    println(if (result is String) result else __format(result))
}
`,

	"swift": `import Foundation

{{USER_CODE}}

func __format(_ value: Any) -> String {
    if let s = value as? String { return "\"" + s + "\"" }
    if let arr = value as? [Any] { return "[" + arr.map { __format($0) }.joined(separator: ",") + "]" }
    return "\(value)"
}

let solution = Solution()
let result = {{FUNCTION_CALL}}
if let s = result as? String {
    print(s)
} else {
    print(__format(result))
}
`,

	"rust": `#![allow(unused)]
use std::collections::*;

struct Solution;

{{USER_CODE}}

fn main() {
    let result = {{FUNCTION_CALL}};
    println!("{}", format!("{:?}", result).replace(", ", ","));
}
`,
}

// DefaultTemplate returns the built-in harness for a normalized language name.
func DefaultTemplate(language string) (string, bool) {
	t, ok := defaultTemplates[language]
	return t, ok
}
