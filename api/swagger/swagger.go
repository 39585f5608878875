package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Markaz Admin API",
        "description": "Administration API for Mahad and Dugsi programs",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "tags": [
        {"name": "Auth", "description": "Admin authentication"},
        {"name": "People", "description": "Person records and contact points"},
        {"name": "Profiles", "description": "Program profiles and duplicate resolution"},
        {"name": "Enrollments", "description": "Enrollment lifecycle"},
        {"name": "Batches", "description": "Mahad cohorts"},
        {"name": "Families", "description": "Guardians, siblings and family pricing"},
        {"name": "Billing", "description": "Stripe subscriptions"},
        {"name": "Attendance", "description": "Attendance records"},
        {"name": "CheckIns", "description": "Teacher check-ins"},
        {"name": "Notifications", "description": "WhatsApp and email messaging"},
        {"name": "Exports", "description": "Roster, attendance and contact exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate an admin user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Rotate a refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/people": {
            "get": {
                "tags": ["People"],
                "summary": "List people",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["People"],
                "summary": "Create person",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/people/lookup": {
            "get": {
                "tags": ["People"],
                "summary": "Search people across roles and programs",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/profiles": {
            "get": {
                "tags": ["Profiles"],
                "summary": "List program profiles",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Profiles"],
                "summary": "Create program profile",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/profiles/{id}": {
            "delete": {
                "tags": ["Profiles"],
                "summary": "Delete program profile",
                "description": "Mahad profiles are withdrawn; Dugsi profiles are removed with their family group",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/profiles/duplicates/resolve": {
            "post": {
                "tags": ["Profiles"],
                "summary": "Resolve duplicate profiles",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Create enrollment",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Open enrollment already exists"}
                }
            }
        },
        "/enrollments/{id}/transition": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Transition enrollment status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition"}
                }
            }
        },
        "/batches": {
            "get": {
                "tags": ["Batches"],
                "summary": "List batches",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Batches"],
                "summary": "Create batch",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/bulk-assign": {
            "post": {
                "tags": ["Batches"],
                "summary": "Assign several enrollments to a batch",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/families/guardians": {
            "post": {
                "tags": ["Families"],
                "summary": "Link a guardian to a student",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/families/siblings/detect": {
            "post": {
                "tags": ["Families"],
                "summary": "Detect sibling candidates",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/billing/subscriptions/link": {
            "post": {
                "tags": ["Billing"],
                "summary": "Link a Stripe subscription to profiles by payer email",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/billing/subscriptions/sync": {
            "post": {
                "tags": ["Billing"],
                "summary": "Re-sync open subscriptions from Stripe",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance records",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/bulk": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Mark attendance for several enrollments",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/checkins": {
            "get": {
                "tags": ["CheckIns"],
                "summary": "List teacher check-ins",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["CheckIns"],
                "summary": "Record a check-in for today",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already checked in today"}
                }
            }
        },
        "/notifications/send": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Send a single message",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate send inside the dedup window"}
                }
            }
        },
        "/notifications/bulk": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Send a message to a list of recipients",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export a batch roster as CSV or PDF",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/batches/{id}/contacts/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export batch contacts as a vCard file",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
